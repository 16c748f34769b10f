package channel

// Request is one command sent to the engine.
type Request struct {
	Seq      uint32  `json:"seq"`
	Command  Command `json:"command"`
	Encoding string  `json:"encoding,omitempty"`
	Payload  []byte  `json:"payload,omitempty"`
}

// Status is the engine's answer to one Request.
type Status struct {
	Seq     uint32 `json:"seq"`
	Code    Code   `json:"code"`
	Message string `json:"message,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

func (s *Status) Err() error { return s.Code.Err() }

// Reply builds an OK status carrying v encoded for req.
func Reply(req *Request, v any) *Status {
	if v == nil {
		return &Status{Seq: req.Seq, Code: OK}
	}
	c, err := CodecByName(req.Encoding)
	if err != nil {
		return Fail(req, InvalidArgument, err.Error())
	}
	data, err := c.Encode(v)
	if err != nil {
		return Fail(req, Failed, "encode reply: "+err.Error())
	}
	return &Status{Seq: req.Seq, Code: OK, Payload: data}
}

func Fail(req *Request, code Code, msg string) *Status {
	return &Status{Seq: req.Seq, Code: code, Message: msg}
}

// FailErr builds a failed status from an engine error.
func FailErr(req *Request, err error) *Status {
	return Fail(req, CodeOf(err), err.Error())
}

// Decode unpacks the request payload into v.
func (r *Request) Decode(v any) error {
	c, err := CodecByName(r.Encoding)
	if err != nil {
		return err
	}
	if len(r.Payload) == 0 {
		return nil
	}
	return c.Decode(r.Payload, v)
}
