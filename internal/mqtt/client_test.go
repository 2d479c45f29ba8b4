package mqtt

import (
	"testing"

	"github.com/berfenger/exportlimit/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() (*MQTTClient, *TestPahoClient) {
	paho := NewTestPahoClient()
	return newMQTTClient(config.MQTTBusConfig{PortalId: "c0619ab1e2f3"}, paho), paho
}

func TestNotificationParse(t *testing.T) {

	assert := assert.New(t)

	c, _ := testClient()
	n, err := c.ParseNotification(TestMessage{TopicName: "N/c0619ab1e2f3/grid/30/Ac/Power", Body: []byte(`{"value": -1250.5}`)})
	require.NoError(t, err)

	assert.Equal("grid", n.Type, "service type extract")
	assert.Equal(uint(30), n.Instance, "instance extract")
	assert.Equal("/Ac/Power", n.Path, "path extract")
	require.NotNil(t, n.Value)
	assert.Equal(-1250.5, *n.Value)
}

func TestNotificationParseNullValue(t *testing.T) {
	c, _ := testClient()
	n, err := c.ParseNotification(TestMessage{TopicName: "N/c0619ab1e2f3/vebus/276/Hub4/L1/AcPowerSetpoint", Body: []byte(`{"value": null}`)})
	require.NoError(t, err)
	assert.Equal(t, "/Hub4/L1/AcPowerSetpoint", n.Path)
	assert.Nil(t, n.Value)
}

func TestNotificationParseFail(t *testing.T) {

	assert := assert.New(t)

	c, _ := testClient()
	_, err := c.ParseNotification(TestMessage{TopicName: "N/otherportal/grid/30/Ac/Power", Body: []byte(`{"value": 1}`)})
	assert.Error(err, "other portal")

	_, err = c.ParseNotification(TestMessage{TopicName: "W/c0619ab1e2f3/grid/30/Ac/Power", Body: []byte(`{"value": 1}`)})
	assert.Error(err, "write topic")

	_, err = c.ParseNotification(TestMessage{TopicName: "N/c0619ab1e2f3/grid/30/Ac/Power", Body: []byte(`garbage`)})
	assert.Error(err, "invalid payload")
}

func TestTopics(t *testing.T) {

	assert := assert.New(t)

	c, _ := testClient()
	assert.Equal("W/c0619ab1e2f3/settings/0/Settings/CGwacs/MaxFeedInPower", c.WriteTopic("settings", 0, "/Settings/CGwacs/MaxFeedInPower"))
	assert.Equal("R/c0619ab1e2f3/vebus/276/Ac/Out/P", c.ReadTopic("vebus", 276, "/Ac/Out/P"))
	assert.Equal("N/c0619ab1e2f3/vebus/276/Ac/Out/P", c.NotificationTopic("vebus", 276, "/Ac/Out/P"))
	assert.Equal("R/c0619ab1e2f3/keepalive", c.KeepaliveTopic())
	assert.Equal("N/c0619ab1e2f3/#", c.notificationsTopic())
}

func TestEncodeValue(t *testing.T) {
	assert.JSONEq(t, `{"value": 13000}`, string(EncodeValue(13000)))
}
