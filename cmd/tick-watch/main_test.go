package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitSymbols(t *testing.T) {
	assert.Nil(t, splitSymbols(""))
	assert.Equal(t, []string{"GOOG", "AAPL"}, splitSymbols(" GOOG, ,AAPL "))
}
