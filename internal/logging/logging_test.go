package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestSetupParsesLevel(t *testing.T) {
	Setup("debug", true)
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	Setup("not-a-level", false)
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
	_, isJSON := logrus.StandardLogger().Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}

func TestComponentTagsEntry(t *testing.T) {
	entry := Component("hub")
	assert.Equal(t, "hub", entry.Data["component"])
}
