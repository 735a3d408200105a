// Package influxdb records Refoss sensor readings and button clicks as
// time series.
//
// Every numeric sensor state the bridge publishes is also written as a
// refoss_sensor point tagged with device, entity and device class, and every
// click as a refoss_click point. Writes are batched according to
// influxdb.batch_size and influxdb.flush_interval.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics turned off
//	}
//	defer client.Close()
//
//	client.WriteSensor(influxdb.SensorSample{DeviceID: mac, Entity: "switch:0-power", Value: 12.5})
package influxdb
