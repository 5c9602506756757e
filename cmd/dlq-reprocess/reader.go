package main

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

type offsetSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, at int64) (int64, error)
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error)
}

// partitionReader читает каждую партицию топика от самого старого offset
// до high watermark, зафиксированного перед чтением. Записи, пришедшие
// во время прогона, не читаются.
type partitionReader struct {
	offsets    offsetSource
	partitions partitionSource
	topic      string
	idle       time.Duration
}

// Read передаёт visit не больше limit записей.
func (r *partitionReader) Read(ctx context.Context, limit int, visit func(*sarama.ConsumerMessage) error) error {
	partitions, err := r.offsets.Partitions(r.topic)
	if err != nil {
		return fmt.Errorf("list partitions of %s: %w", r.topic, err)
	}
	for _, partition := range partitions {
		if limit <= 0 {
			return nil
		}
		read, err := r.readPartition(ctx, partition, limit, visit)
		if err != nil {
			return err
		}
		limit -= read
	}
	return nil
}

func (r *partitionReader) readPartition(ctx context.Context, partition int32, limit int, visit func(*sarama.ConsumerMessage) error) (int, error) {
	oldest, err := r.offsets.GetOffset(r.topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, fmt.Errorf("oldest offset of %s/%d: %w", r.topic, partition, err)
	}
	newest, err := r.offsets.GetOffset(r.topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, fmt.Errorf("newest offset of %s/%d: %w", r.topic, partition, err)
	}
	if newest <= oldest {
		return 0, nil
	}

	pc, err := r.partitions.ConsumePartition(r.topic, partition, oldest)
	if err != nil {
		return 0, fmt.Errorf("consume %s/%d: %w", r.topic, partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.idle)
	defer idle.Stop()

	read := 0
	for read < limit {
		select {
		case <-ctx.Done():
			return read, ctx.Err()
		case <-idle.C:
			return read, nil
		case cerr, ok := <-pc.Errors():
			if !ok {
				return read, nil
			}
			return read, fmt.Errorf("read %s/%d: %w", r.topic, partition, cerr.Err)
		case msg, ok := <-pc.Messages():
			if !ok || msg.Offset >= newest {
				return read, nil
			}
			read++
			if err := visit(msg); err != nil {
				return read, err
			}
			if msg.Offset+1 >= newest {
				return read, nil
			}
			idle.Reset(r.idle)
		}
	}
	return read, nil
}
