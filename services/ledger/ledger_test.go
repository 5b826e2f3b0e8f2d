package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stagegen/services/generator"
)

func sequentialIDs() func() uuid.UUID {
	n := byte(0)
	return func() uuid.UUID {
		n++
		var id uuid.UUID
		id[15] = n
		return id
	}
}

func TestToModels(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	res := &generator.Result{
		Parameters: generator.Parameters{ProductID: "iPhone14,2", GUID: "g", Serial: "s"},
		Stages: []generator.StageOutput{
			{Stage: "stage1", Dir: "/srv/firststp/a", Path: "/srv/firststp/a/fixedfile", URL: "http://h/firststp/a/fixedfile"},
			{Stage: "stage2", Dir: "/srv/2ndd/b", Path: "/srv/2ndd/b/belliloveu.png", URL: "http://h/2ndd/b/belliloveu.png"},
		},
		Descriptor: generator.DescriptorInfo{Path: "/srv/Maker/iPhone14-2/d.plist", Size: 12},
		CreatedAt:  created,
	}

	gen, artifacts := toModels(res, sequentialIDs())

	assert.Equal(t, "iPhone14,2", gen.ProductID)
	assert.Equal(t, int64(12), gen.DescriptorSize)
	assert.Equal(t, "http://h/2ndd/b/belliloveu.png", gen.Links["stage2"])
	assert.Equal(t, created, gen.CreatedAt)

	require.Len(t, artifacts, 2)
	for _, a := range artifacts {
		assert.Equal(t, gen.ID, a.GenerationID)
		assert.NotEqual(t, gen.ID, a.ID)
		assert.Nil(t, a.SweptAt)
	}
	assert.Equal(t, "/srv/2ndd/b", artifacts[1].Dir)
	assert.Equal(t, "stage1", artifacts[0].Stage)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-3))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxLimit, ClampLimit(10_000))
}

func TestNilLedger(t *testing.T) {
	var l *Ledger
	require.Error(t, l.RecordGeneration(context.Background(), &generator.Result{}))
	_, err := l.Recent(context.Background(), 1)
	require.Error(t, err)
	_, err = l.MarkSwept(context.Background(), "/x")
	require.Error(t, err)

	_, err = New(nil)
	require.Error(t, err)
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "generations", generationModel{}.TableName())
	assert.Equal(t, "generation_artifacts", artifactModel{}.TableName())
}
