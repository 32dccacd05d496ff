package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/suyashwaghule/joitex-IVM/pkg/testutil"
)

func TestMain(m *testing.M) {
	code := m.Run()
	testutil.TerminateContainer(context.Background())
	os.Exit(code)
}
