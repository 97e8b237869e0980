package queue

import (
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	acks    []uint64
	nacks   []uint64
	requeue []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acks = append(f.acks, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacks = append(f.nacks, tag)
	f.requeue = append(f.requeue, requeue)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return nil
}

func TestJobAckSettlesDelivery(t *testing.T) {
	ack := &fakeAcknowledger{}
	job := Job{
		TransactionID: "txn-1",
		delivery:      amqp.Delivery{Acknowledger: ack, DeliveryTag: 7},
	}

	require.NoError(t, job.Ack())
	assert.Equal(t, []uint64{7}, ack.acks)
	assert.Empty(t, ack.nacks)
}

func TestJobRequeueReturnsDelivery(t *testing.T) {
	ack := &fakeAcknowledger{}
	job := Job{
		TransactionID: "txn-1",
		delivery:      amqp.Delivery{Acknowledger: ack, DeliveryTag: 9},
	}

	require.NoError(t, job.Requeue())
	assert.Equal(t, []uint64{9}, ack.nacks)
	assert.Equal(t, []bool{true}, ack.requeue, "a requeued job must go back on the queue")
	assert.Empty(t, ack.acks)
}
