package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-quill/internal/client"
)

// QuillFlightServer serves encoding over Arrow Flight. It shares admission
// control, cache and forwarding with the HTTP server.
type QuillFlightServer struct {
	flight.BaseFlightServer
	srv *Server
}

func NewQuillFlightServer(srv *Server) *QuillFlightServer {
	return &QuillFlightServer{srv: srv}
}

// PutAck is the CBOR app metadata of every DoPut result.
type PutAck struct {
	Rows      int64 `cbor:"rows"`
	Forwarded bool  `cbor:"forwarded"`
}

// encodeRecord encodes the text column of rec, or decodes its ids column when
// it has no text, and returns a {text, ids} record.
func (f *QuillFlightServer) encodeRecord(ctx context.Context, rec arrow.RecordBatch) (arrow.RecordBatch, error) {
	schema := rec.Schema()
	if !schema.HasField(client.TextColumn) && schema.HasField(client.IDsColumn) {
		vectors, err := client.VectorsFromRecord(rec)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		texts, err := f.srv.encoder.BatchDecode(vectors)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return f.srv.builder.BuildRecordBatch(texts, vectors)
	}

	texts, err := client.TextsFromRecord(rec)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	vectors, err := f.srv.encode(ctx, texts)
	if err != nil {
		return nil, status.Error(encodeErrorCode(err), err.Error())
	}
	return f.srv.builder.BuildRecordBatch(texts, vectors)
}

func encodeErrorCode(err error) codes.Code {
	switch {
	case errors.Is(err, errTooLarge):
		return codes.ResourceExhausted
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	default:
		return codes.Internal
	}
}

// DoExchange answers every incoming record with its encoded (or decoded)
// counterpart on the same stream.
func (f *QuillFlightServer) DoExchange(stream flight.FlightService_DoExchangeServer) error {
	ctx := stream.Context()
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(f.srv.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	var writer *flight.Writer
	for reader.Next() {
		out, err := f.encodeRecord(ctx, reader.Record())
		if err != nil {
			return err
		}
		if out == nil {
			continue
		}
		if writer == nil {
			writer = flight.NewRecordWriter(stream, ipc.WithSchema(out.Schema()), ipc.WithAllocator(f.srv.alloc))
			defer writer.Close()
		}
		err = writer.Write(out)
		out.Release()
		if err != nil {
			return fmt.Errorf("write exchange batch: %w", err)
		}
	}
	return reader.Err()
}

// DoPut encodes incoming records, forwards them to Longbow when configured and
// acknowledges each with a PutResult.
func (f *QuillFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	ctx := stream.Context()
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(f.srv.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	for reader.Next() {
		rec := reader.Record()
		log.Info().Int64("rows", rec.NumRows()).Msg("DoPut received batch")

		out, err := f.encodeRecord(ctx, rec)
		if err != nil {
			return err
		}
		ack := PutAck{Rows: rec.NumRows()}
		if out != nil {
			if f.srv.forwarder != nil {
				if err := f.srv.forwarder.Forward(ctx, out); err != nil {
					forwardErrors.Inc()
					log.Error().Err(err).Msg("Error forwarding batch to Longbow")
				} else {
					ack.Forwarded = true
				}
			}
			out.Release()
		}

		meta, err := cbor.Marshal(ack)
		if err != nil {
			return err
		}
		if err := stream.Send(&flight.PutResult{AppMetadata: meta}); err != nil {
			return err
		}
	}
	return reader.Err()
}

// newFlightServer creates the gRPC Flight server bound to addr.
func newFlightServer(addr string, srv *Server) (flight.Server, error) {
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(NewQuillFlightServer(srv))
	if err := server.Init(addr); err != nil {
		return nil, fmt.Errorf("init Flight server: %w", err)
	}
	return server, nil
}
