package modelclient

import (
	"context"
	"testing"
	"time"

	"github.com/clipper-go/predictserve/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnForReusesConnection(t *testing.T) {
	c := NewGRPCModelClient("models.internal", "9000", time.Second)
	defer c.Close()

	target := model.VersionedModelId{Name: "resnet", Version: "1"}
	conn1, err := c.connFor(target)
	require.NoError(t, err)
	conn2, err := c.connFor(target)
	require.NoError(t, err)
	assert.Same(t, conn1, conn2)
}

func TestPredictFailsFastOnUnreachableTarget(t *testing.T) {
	c := NewGRPCModelClient("models.invalid.test", "1", time.Millisecond)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	target := model.VersionedModelId{Name: "nope", Version: "0"}
	_, err := c.Predict(ctx, target, PredictRequest{AppName: "app", UserID: "u"})
	assert.Error(t, err)
}
