// Package queue 定义消息主题常量，供发布/订阅使用.
package queue

// 主题命名规范：fsi.<域>.<动作>，尽量稳定且向后兼容.
const (
	TopicFileIndexed   = "fsi.file.indexed"   // 首次发现并写入索引的文件
	TopicFileUpdated   = "fsi.file.updated"   // 已有条目被刷新（路径、大小、修改时间等变化）
	TopicScanCompleted = "fsi.scan.completed" // 一次扫描结束，负载为扫描统计
)

// FileTopics 携带文件负载的主题.
var FileTopics = []string{TopicFileIndexed, TopicFileUpdated}

// AllTopics 全部主题.
var AllTopics = []string{TopicFileIndexed, TopicFileUpdated, TopicScanCompleted}
