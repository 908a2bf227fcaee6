package asnrt

import (
	"testing"

	"github.com/gemalto/flume/flumetest"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	flumetest.SetDefaults()
	goleak.VerifyTestMain(m)
}
