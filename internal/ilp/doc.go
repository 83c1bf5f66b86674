// Package ilp implements a client for the InfluxDB Line Protocol over TCP,
// as accepted by QuestDB and compatible servers.
//
// # Purpose
//
// Callers build rows with a strict call grammar, accumulate them in an
// in-memory buffer, and flush the buffer over a single blocking TCP socket:
//
//	table,sym=v,sym=v col=v,col=v 1700000000000000000\n
//
// # Usage
//
//	sender, err := ilp.Connect(ctx, ilp.Config{Host: "localhost", Port: "9009"})
//	if err != nil {
//	    return err
//	}
//	defer sender.Close()
//
//	sender.Table("trades")
//	sender.Symbol("symbol", "ETH-USD")
//	sender.ColumnFloat("price", 2615.54)
//	sender.At(time.Now().UnixNano())
//
//	if err := sender.Flush(); err != nil {
//	    // sender.MustClose() is now true
//	}
//
// Metrics already shaped as line-protocol (for example write.Point from the
// InfluxDB client) can be written in one call with WriteMetric.
//
// # Thread Safety
//
// Neither Sender nor Buffer is safe for concurrent use. A Sender is used by
// pointer only and must not be copied.
//
// # Error Handling
//
// Every error wraps one sentinel (ErrCouldNotResolveAddr, ErrInvalidAPICall,
// ErrSocket, ErrInvalidUTF8, ErrInvalidIdentifier); Code maps an error to its
// ErrorCode. Validation errors leave the buffer unchanged. Socket errors mark
// the sender must-close: pending data stays readable through PendingSize and
// Drain, and every other call fails until Close.
package ilp
