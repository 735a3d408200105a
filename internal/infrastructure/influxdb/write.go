package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSensor = "refoss_sensor"
	MeasurementClick  = "refoss_click"
)

// SensorSample is one numeric sensor reading.
type SensorSample struct {
	DeviceID    string
	Entity      string
	DeviceClass string
	Unit        string
	Value       float64
	Time        time.Time
}

// ClickSample is one button press reported by a device input.
type ClickSample struct {
	DeviceID  string
	Channel   int
	ClickType string
	Time      time.Time
}

// WriteSensor queues a sensor reading. Dropped silently when disconnected.
func (c *Client) WriteSensor(s SensorSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(sensorPoint(s))
}

// WriteClick queues a click event. Dropped silently when disconnected.
func (c *Client) WriteClick(s ClickSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(clickPoint(s))
}

func sensorPoint(s SensorSample) *write.Point {
	tags := map[string]string{
		"device_id": s.DeviceID,
		"entity":    s.Entity,
	}
	if s.DeviceClass != "" {
		tags["device_class"] = s.DeviceClass
	}
	if s.Unit != "" {
		tags["unit"] = s.Unit
	}
	return write.NewPoint(MeasurementSensor, tags,
		map[string]interface{}{"value": s.Value}, timestamp(s.Time))
}

func clickPoint(s ClickSample) *write.Point {
	return write.NewPoint(MeasurementClick,
		map[string]string{
			"device_id":  s.DeviceID,
			"click_type": s.ClickType,
		},
		map[string]interface{}{"channel": int64(s.Channel)},
		timestamp(s.Time))
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
