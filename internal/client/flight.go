package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrCircuitOpen is returned by Forwarder while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker open")

// FlightClient sends encoded record batches to a Longbow server via Apache
// Flight.
type FlightClient struct {
	client flight.Client
	conn   *grpc.ClientConn
}

// NewFlightClient creates a new Flight client connected to the given address.
func NewFlightClient(addr string) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	client := flight.NewClientFromConn(conn, nil)
	return &FlightClient{
		client: client,
		conn:   conn,
	}, nil
}

// DoPut sends a record batch to the given dataset and waits for the server
// to finish the stream.
func (c *FlightClient) DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return fmt.Errorf("open DoPut stream: %w", err)
	}

	writer := flight.NewRecordWriter(stream)
	// The descriptor travels with the first message.
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{datasetName},
	})

	if err := writer.Write(record); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close send: %w", err)
	}
	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("DoPut: %w", err)
		}
	}
}

// Exchange sends record to a Quill Flight server over DoExchange and returns
// the texts and vectors of the records it answers with.
func (c *FlightClient) Exchange(ctx context.Context, record arrow.RecordBatch) ([]string, [][]int64, error) {
	stream, err := c.client.DoExchange(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("open DoExchange stream: %w", err)
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(record.Schema()))
	if err := writer.Write(record); err != nil {
		return nil, nil, fmt.Errorf("write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, nil, fmt.Errorf("close writer: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, fmt.Errorf("close send: %w", err)
	}

	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, nil, fmt.Errorf("DoExchange: %w", err)
	}
	defer reader.Release()

	var (
		texts   []string
		vectors [][]int64
	)
	for reader.Next() {
		rec := reader.Record()
		t, err := TextsFromRecord(rec)
		if err != nil {
			return nil, nil, err
		}
		v, err := VectorsFromRecord(rec)
		if err != nil {
			return nil, nil, err
		}
		texts = append(texts, t...)
		vectors = append(vectors, v...)
	}
	return texts, vectors, reader.Err()
}

// Close closes the client connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}

// Putter is the DoPut half of FlightClient.
type Putter interface {
	DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error
}

// Forwarder guards a Putter with a circuit breaker.
type Forwarder struct {
	putter  Putter
	breaker *CircuitBreaker
	dataset string
}

func NewForwarder(p Putter, breaker *CircuitBreaker, dataset string) *Forwarder {
	return &Forwarder{putter: p, breaker: breaker, dataset: dataset}
}

// Forward sends record unless the breaker is open.
func (f *Forwarder) Forward(ctx context.Context, record arrow.RecordBatch) error {
	if !f.breaker.Allow() {
		return ErrCircuitOpen
	}
	if err := f.putter.DoPut(ctx, f.dataset, record); err != nil {
		f.breaker.Failure()
		return err
	}
	f.breaker.Success()
	return nil
}

func (f *Forwarder) Dataset() string { return f.dataset }
