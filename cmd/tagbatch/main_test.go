package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tagbatch/internal/cli"
)

func TestRunExitCodes(t *testing.T) {
	var out, errOut bytes.Buffer

	assert.Equal(t, cli.ExitSuccess, run([]string{"validate", "../../internal/cli/testdata/variants"}, &out, &errOut))
	assert.Contains(t, out.String(), "All variants valid")

	out.Reset()
	assert.Equal(t, cli.ExitFailure, run([]string{"validate", "../../internal/cli/testdata/badvariants"}, &out, &errOut))

	errOut.Reset()
	assert.Equal(t, cli.ExitCommandError, run([]string{"validate", "no/such/dir"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "failed to load variants: E005")
}
