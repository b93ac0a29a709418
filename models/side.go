package models

import (
	"encoding/json"
	"fmt"
)

// Side identifies the book side an order rests on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the side a taker order of this side consumes.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "buy", "bid":
		*s = Buy
	case "sell", "ask":
		*s = Sell
	default:
		return fmt.Errorf("unknown side %q", v)
	}
	return nil
}

// ParseSide converts a wire side string into a Side.
func ParseSide(v string) (Side, error) {
	var s Side
	err := s.UnmarshalJSON([]byte(fmt.Sprintf("%q", v)))
	return s, err
}
