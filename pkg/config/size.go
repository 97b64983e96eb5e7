package config

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
)

// ByteSize is a byte count that accepts plain integers or human units
// such as "100 MiB" or "5MB" in YAML and environment values
type ByteSize uint64

// ParseSize parses a size string into bytes
func ParseSize(s string) (ByteSize, error) {
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ByteSize(n), nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// Decode implements envconfig.Decoder
func (b *ByteSize) Decode(value string) error {
	n, err := ParseSize(value)
	if err != nil {
		return err
	}
	*b = n
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n uint64
	if err := unmarshal(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}

	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return b.Decode(s)
}

// MarshalYAML writes the size in IEC units
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return b.String(), nil
}

// String formats the size in IEC units
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Int64 returns the size as a signed byte count
func (b ByteSize) Int64() int64 {
	return int64(b)
}
