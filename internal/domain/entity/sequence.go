package entity

import (
	"fmt"
	"time"
)

// Width bounds for the zero-padded counter of an identifier
const (
	MinSequenceWidth = 1
	MaxSequenceWidth = 8
)

// BucketPeriod is the time scope that partitions a sequence counter
type BucketPeriod string

// Bucket periods
const (
	BucketDaily  BucketPeriod = "DAILY"
	BucketYearly BucketPeriod = "YEARLY"
)

// Key formats t as the fixed-width bucket key for the period
func (p BucketPeriod) Key(t time.Time) string {
	if p == BucketYearly {
		return t.Format("2006")
	}
	return t.Format("20060102")
}

// IsValid reports whether p is a known period
func (p BucketPeriod) IsValid() bool {
	return p == BucketDaily || p == BucketYearly
}

// SequenceFamily describes one identifier family
type SequenceFamily struct {
	Name   string       `json:"name"`
	Prefix string       `json:"prefix"`
	Period BucketPeriod `json:"period"`
	Width  int          `json:"width"`
}

// Format renders PREFIX-BUCKET-NNN. Counters wider than Width are printed in full.
func (f SequenceFamily) Format(bucketKey string, counter int64) string {
	return fmt.Sprintf("%s-%s-%0*d", f.Prefix, bucketKey, f.Width, counter)
}

// Validate checks the family definition
func (f SequenceFamily) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("%w: sequence family name is required", ErrValidation)
	}
	if f.Prefix == "" {
		return fmt.Errorf("%w: sequence family %s: prefix is required", ErrValidation, f.Name)
	}
	if !f.Period.IsValid() {
		return fmt.Errorf("%w: sequence family %s: invalid period %q", ErrValidation, f.Name, f.Period)
	}
	if f.Width < MinSequenceWidth || f.Width > MaxSequenceWidth {
		return fmt.Errorf("%w: sequence family %s: width %d outside %d-%d",
			ErrValidation, f.Name, f.Width, MinSequenceWidth, MaxSequenceWidth)
	}
	return nil
}

// SequenceCounter is the stored counter row for one family and bucket
type SequenceCounter struct {
	Family    string    `json:"family"`
	BucketKey string    `json:"bucket_key"`
	Counter   int64     `json:"counter"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
