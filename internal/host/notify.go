package host

import (
	"fmt"
	"io"
	"sync"
)

// WriterNotifier 把提示写到 io.Writer（命令行下代替 alert）
type WriterNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterNotifier 创建写入 w 的提示器
func NewWriterNotifier(w io.Writer) *WriterNotifier {
	return &WriterNotifier{w: w}
}

// Alert 实现 Notifier
func (n *WriterNotifier) Alert(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, message)
}
