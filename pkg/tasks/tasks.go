// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// TextExtractionTask represents the data structure for a context-file extraction job.
type TextExtractionTask struct {
	FileID     uint   `json:"file_id"`
	ObjectName string `json:"object_name"`
	FileName   string `json:"file_name"`
	UserID     uint   `json:"user_id"`
	TabKey     string `json:"tab_key"`
}
