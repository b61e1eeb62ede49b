package models

import (
	"math"
	"testing"
	"time"
)

func TestCandleOpenTime(t *testing.T) {
	c := Candle{Ctm: 1704067200000}
	expected := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !c.OpenTime().Equal(expected) {
		t.Errorf("OpenTime() = %s, want %s", c.OpenTime(), expected)
	}
}

func TestCandleValidate(t *testing.T) {
	valid := Candle{Ctm: 1704067200000, Open: 1.1, Close: 1.2, High: 1.3, Low: 1.0, Vol: 42}

	tests := []struct {
		name    string
		mutate  func(*Candle)
		wantErr bool
	}{
		{"valid", func(*Candle) {}, false},
		{"zero ctm", func(c *Candle) { c.Ctm = 0 }, true},
		{"negative ctm", func(c *Candle) { c.Ctm = -1 }, true},
		{"NaN price", func(c *Candle) { c.Open = math.NaN() }, true},
		{"Inf volume", func(c *Candle) { c.Vol = math.Inf(1) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
