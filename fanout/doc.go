// Package fanout delivers one producer's byte stream to many TCP clients
// without letting any client stall the producer.
//
// Sockets are raw non-blocking descriptors. Each frame is written to every
// client in registration order; a client that cannot take the whole frame
// loses the remainder, and a client whose socket errors is dropped.
// Nothing is queued per client.
//
// A peer that stays connected but stops reading is only ever reported as
// would-block, so it is kept and misses data. It is dropped once the OS
// reports an error on the socket, such as a reset.
//
//	ln, _ := fanout.Listen("127.0.0.1:18080", fanout.DefaultBacklog)
//	srv := fanout.NewServer(ln)
//	for {
//	    srv.AcceptPending()
//	    srv.DrainInbound()
//	    srv.Broadcast(frame)
//	}
package fanout
