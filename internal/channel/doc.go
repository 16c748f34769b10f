// Package channel carries commands to a physics engine and statuses back.
//
// Every exchange is one [Request] answered by one [Status]. Payloads are
// encoded with a [Codec] whose name travels in the request, so the engine
// replies in kind. A [Transport] moves envelopes; [Conn] sits on top of a
// transport and keeps exactly one request in flight:
//
//	t, err := channel.Dial(ctx, "tcp", "localhost:7420")
//	conn := channel.NewConn(t, channel.WithCodec(channel.Msgpack))
//	var reply channel.BodyList
//	err = conn.Call(ctx, channel.CmdListBodies, nil, &reply)
//
// Engine implementations provide a [Handler] and expose it with
// [NewFramedServer], [NewHTTPHandler] or [NewGRPCServer], or wrap it with
// [Direct] for in-process use.
package channel
