package configstore

import (
	"testing"

	"github.com/clipper-go/predictserve/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrToModelsAndBack(t *testing.T) {
	models, err := StrToModels("resnet:1, vgg:3")
	require.NoError(t, err)
	assert.Equal(t, []model.VersionedModelId{
		{Name: "resnet", Version: "1"},
		{Name: "vgg", Version: "3"},
	}, models)

	assert.Equal(t, "resnet:1,vgg:3", ModelsToStr(models))
}

func TestStrToModelsEmpty(t *testing.T) {
	models, err := StrToModels("")
	require.NoError(t, err)
	assert.Nil(t, models)
}

func TestStrToModelsMalformed(t *testing.T) {
	_, err := StrToModels("resnet")
	assert.Error(t, err)
}

func TestMemoryStorePutFiresHsetToSubscribers(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Connect())

	var events []EventType
	var keys []string
	store.SubscribeToApplicationChanges(func(key string, eventType EventType) {
		keys = append(keys, key)
		events = append(events, eventType)
	})

	store.Put("my_app", map[string]string{
		"candidate_models":   "resnet:1",
		"input_type":         "doubles",
		"policy":             "default_output_policy",
		"default_output":     "0.0",
		"latency_slo_micros": "20000",
	})

	require.Len(t, events, 1)
	assert.Equal(t, EventHset, events[0])
	assert.Equal(t, "my_app", keys[0])

	fields, err := store.GetApplicationByKey("my_app")
	require.NoError(t, err)
	assert.Equal(t, "resnet:1", fields["candidate_models"])
}

func TestMemoryStoreDeleteFiresHdel(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Connect())
	store.Put("my_app", map[string]string{"policy": "default_output_policy"})

	var lastEvent EventType
	store.SubscribeToApplicationChanges(func(key string, eventType EventType) {
		lastEvent = eventType
	})
	store.Delete("my_app")
	assert.Equal(t, EventHdel, lastEvent)

	_, err := store.GetApplicationByKey("my_app")
	assert.Error(t, err)
}
