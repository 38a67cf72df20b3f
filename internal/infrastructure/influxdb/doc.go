// Package influxdb writes dSS group statuses to an InfluxDB v2 bucket.
//
// One point per resolved event or resynced group, in the group_status
// measurement:
//
//	group_status,zone=3,type=shadow,group=0,kind=shadow,source=event open=0.5,angle=0.3,scene=56i
//
// WriteGroupStatus never blocks; the client batches by batch_size and
// flush_interval. Failed batches show up in Stats().Failed and are passed
// to the SetOnError callback.
package influxdb
