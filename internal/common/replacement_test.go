package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

func TestReplaceKeyReferences(t *testing.T) {
	logger := arbor.NewLogger()
	vars := map[string]string{
		"transfer_uuid": "6953950b-c101-4f4c-a0c3-0cd0684afe5e",
		"transfer_name": "BagTransfer_1",
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "{transfer_uuid}", "6953950b-c101-4f4c-a0c3-0cd0684afe5e"},
		{"embedded", "unit {transfer_name} started", "unit BagTransfer_1 started"},
		{"multiple", "{transfer_name}-{transfer_uuid}", "BagTransfer_1-6953950b-c101-4f4c-a0c3-0cd0684afe5e"},
		{"missing left unchanged", "{sip_uuid}", "{sip_uuid}"},
		{"empty", "", ""},
		{"no references", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ReplaceKeyReferences(tt.input, vars, logger))
		})
	}
}

func TestReplaceInMap_Nested(t *testing.T) {
	logger := arbor.NewLogger()
	vars := map[string]string{"sip_uuid": "abc"}

	m := map[string]interface{}{
		"unit":     "{sip_uuid}",
		"count":    3,
		"nested":   map[string]interface{}{"id": "{sip_uuid}"},
		"list":     []interface{}{"{sip_uuid}", 1, map[string]interface{}{"x": "{sip_uuid}"}},
		"accepted": []string{"x-{sip_uuid}"},
	}

	ReplaceInMap(m, vars, logger)

	assert.Equal(t, "abc", m["unit"])
	assert.Equal(t, 3, m["count"])
	assert.Equal(t, "abc", m["nested"].(map[string]interface{})["id"])
	list := m["list"].([]interface{})
	assert.Equal(t, "abc", list[0])
	assert.Equal(t, 1, list[1])
	assert.Equal(t, "abc", list[2].(map[string]interface{})["x"])
	assert.Equal(t, []string{"x-abc"}, m["accepted"])
}
