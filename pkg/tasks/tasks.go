// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// CaseIndexOp 标识索引任务的类型。
type CaseIndexOp string

const (
	CaseIndexUpsert CaseIndexOp = "upsert"
	CaseIndexDelete CaseIndexOp = "delete"
)

// CaseIndexTask 通知索引器某个案件已被保存或删除。
// 任务只携带 ID，索引器从数据库读取最新快照，因此重复投递是幂等的。
type CaseIndexTask struct {
	CaseID    string      `json:"case_id"`
	Username  string      `json:"username"`
	Op        CaseIndexOp `json:"op"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Key 用于 Kafka 消息分区与失败计数。
func (t CaseIndexTask) Key() string {
	return t.Username + ":" + t.CaseID
}
