package icap

import (
	"bufio"
	"io"

	"github.com/icapforge/icap/icaperr"
)

// ReadRequest reads and fully parses one ICAP request from br: the ICAP
// envelope, any encapsulated HTTP preamble(s), and the body up to the
// negotiated Preview limit (or in full, if no Preview was requested).
func ReadRequest(br *bufio.Reader) (*ICAPRequest, error) {
	req, err := readICAPPreamble(br)
	if err != nil {
		return nil, err
	}

	if req.IsOPTIONS() {
		if enc, ok := req.Headers.Get("Encapsulated"); ok {
			if err := readOptionsBody(req, br, enc); err != nil {
				return nil, err
			}
		}
		return req, nil
	}

	enc, ok := req.Headers.Get("Encapsulated")
	if !ok {
		return nil, icaperr.Errorf(400, "icap: missing Encapsulated header")
	}
	entries, err := parseEncapsulated(enc)
	if err != nil {
		return nil, err
	}
	sl, err := computeSectionLengths(entries)
	if err != nil {
		return nil, err
	}

	if sl.reqHdrLen > 0 {
		raw, err := readExact(br, sl.reqHdrLen)
		if err != nil {
			return nil, err
		}
		httpReq, err := parseEncapsulatedHTTPRequest(raw)
		if err != nil {
			return nil, err
		}
		req.HTTPReq = httpReq
	}
	if sl.resHdrLen > 0 {
		raw, err := readExact(br, sl.resHdrLen)
		if err != nil {
			return nil, err
		}
		httpResp, err := parseEncapsulatedHTTPResponse(raw)
		if err != nil {
			return nil, err
		}
		req.HTTPResp = httpResp
		if req.HTTPReq != nil {
			httpResp.RequestLine = req.HTTPReq.RequestLine
			httpResp.RequestHeaders = req.HTTPReq.Headers()
		}
	}

	target := bodyTarget(req, sl.bodyKind)
	if target == nil {
		return req, nil
	}

	if req.Preview >= 0 {
		data, ieof, complete, err := readBodySegmentLimit(br, req.Preview)
		if err != nil {
			return nil, icaperr.Wrap(400, err)
		}
		target.SetBodyBytes(data)
		req.PreviewEOF = complete && ieof
		return req, nil
	}

	data, ieof, err := readBodySegment(br)
	if err != nil {
		return nil, icaperr.Wrap(400, err)
	}
	target.SetBodyBytes(data)
	req.PreviewEOF = ieof
	return req, nil
}

func bodyTarget(req *ICAPRequest, bodyKind string) HTTPMessage {
	switch bodyKind {
	case "req-body":
		if req.HTTPReq != nil {
			return req.HTTPReq
		}
	case "res-body":
		if req.HTTPResp != nil {
			return req.HTTPResp
		}
	}
	return nil
}

func readOptionsBody(req *ICAPRequest, br *bufio.Reader, enc string) error {
	entries, err := parseEncapsulated(enc)
	if err != nil {
		return err
	}
	sl, err := computeSectionLengths(entries)
	if err != nil {
		return err
	}
	if sl.bodyKind != "opt-body" {
		return nil
	}
	data, ieof, err := readBodySegment(br)
	if err != nil {
		return icaperr.Wrap(400, err)
	}
	req.HTTPResp = NewHTTPResponse(nil, nil, data)
	req.PreviewEOF = ieof
	return nil
}

func readExact(br *bufio.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, icaperr.Wrap(400, err)
	}
	return buf, nil
}
