package monitoring

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert 一次告警
type Alert struct {
	ID         string     `json:"id"`
	RuleID     string     `json:"rule_id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Level      AlertLevel `json:"level"`
	Component  string     `json:"component"`
	Timestamp  time.Time  `json:"timestamp"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// AlertRule 告警规则
//
// Condition 为真时触发，恢复为假时自动解决。两次触发至少间隔 Cooldown。
type AlertRule struct {
	ID        string
	Name      string
	Condition func(ctx context.Context) bool
	Level     AlertLevel
	Component string
	Message   string
	Cooldown  time.Duration
}

func (r AlertRule) newAlert(now time.Time) *Alert {
	return &Alert{
		ID:        fmt.Sprintf("%s_%d", r.ID, now.UnixNano()),
		RuleID:    r.ID,
		Title:     r.Name,
		Message:   r.Message,
		Level:     r.Level,
		Component: r.Component,
		Timestamp: now,
	}
}

// AlertReceiver 告警投递目标
type AlertReceiver interface {
	SendAlert(alert *Alert) error
}

// ruleState 每条规则当前的告警与上次触发时间
type ruleState struct {
	active    *Alert
	lastFired time.Time
}

// AlertManager 周期评估规则并把告警发给接收器，同一规则同时最多一条活跃告警
type AlertManager struct {
	mu        sync.Mutex
	rules     []AlertRule
	states    map[string]*ruleState
	receivers []AlertReceiver

	log *zap.Logger
	now func() time.Time
}

// NewAlertManager 创建告警管理器
func NewAlertManager(log *zap.Logger) *AlertManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &AlertManager{
		states: make(map[string]*ruleState),
		log:    log,
		now:    time.Now,
	}
}

// AddReceiver 添加告警接收器
func (am *AlertManager) AddReceiver(receiver AlertReceiver) {
	am.mu.Lock()
	am.receivers = append(am.receivers, receiver)
	am.mu.Unlock()
}

// AddRule 添加告警规则
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	am.rules = append(am.rules, rule)
	am.mu.Unlock()
}

func (am *AlertManager) state(ruleID string) *ruleState {
	st, ok := am.states[ruleID]
	if !ok {
		st = &ruleState{}
		am.states[ruleID] = st
	}
	return st
}

// TriggerAlert 登记并投递告警；所属规则已有活跃告警时忽略
func (am *AlertManager) TriggerAlert(alert *Alert) {
	am.mu.Lock()
	st := am.state(alert.RuleID)
	if st.active != nil {
		am.mu.Unlock()
		return
	}
	st.active = alert
	receivers := append([]AlertReceiver(nil), am.receivers...)
	am.mu.Unlock()

	am.deliver(alert, receivers)
}

func (am *AlertManager) deliver(alert *Alert, receivers []AlertReceiver) {
	for _, r := range receivers {
		if err := r.SendAlert(alert); err != nil {
			am.log.Error("failed to send alert", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}
}

// ResolveRule 解决规则当前的活跃告警
func (am *AlertManager) ResolveRule(ruleID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	st, ok := am.states[ruleID]
	if !ok || st.active == nil {
		return
	}
	now := am.now()
	st.active.Resolved = true
	st.active.ResolvedAt = &now
	am.log.Info("alert resolved", zap.String("alert_id", st.active.ID))
	st.active = nil
}

// GetActiveAlerts 返回所有活跃告警，按触发时间排序
func (am *AlertManager) GetActiveAlerts() []Alert {
	am.mu.Lock()
	defer am.mu.Unlock()

	alerts := make([]Alert, 0, len(am.states))
	for _, st := range am.states {
		if st.active != nil {
			alerts = append(alerts, *st.active)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.Before(alerts[j].Timestamp) })
	return alerts
}

// CheckRules 评估一遍所有规则
func (am *AlertManager) CheckRules(ctx context.Context) {
	am.mu.Lock()
	rules := append([]AlertRule(nil), am.rules...)
	am.mu.Unlock()

	for _, rule := range rules {
		if !rule.Condition(ctx) {
			am.ResolveRule(rule.ID)
			continue
		}

		now := am.now()
		am.mu.Lock()
		st := am.state(rule.ID)
		cooling := !st.lastFired.IsZero() && now.Sub(st.lastFired) < rule.Cooldown
		if st.active != nil || cooling {
			am.mu.Unlock()
			continue
		}
		st.lastFired = now
		am.mu.Unlock()

		am.TriggerAlert(rule.newAlert(now))
	}
}

// StartMonitoring 按间隔评估规则，直到 ctx 取消
func (am *AlertManager) StartMonitoring(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.CheckRules(ctx)
		}
	}
}

// HighMemoryUsageRule 堆内存超过 thresholdMB
func HighMemoryUsageRule(thresholdMB float64) AlertRule {
	return AlertRule{
		ID:   "high_memory_usage",
		Name: "High Memory Usage",
		Condition: func(context.Context) bool {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return float64(m.Alloc)/(1<<20) > thresholdMB
		},
		Level:     AlertLevelWarning,
		Component: "memory",
		Message:   fmt.Sprintf("Memory usage exceeds %.0f MB", thresholdMB),
		Cooldown:  5 * time.Minute,
	}
}

// StoreUnavailableRule 下载记录存储健康检查失败
func StoreUnavailableRule(health func(ctx context.Context) error) AlertRule {
	return AlertRule{
		ID:   "download_store",
		Name: "Download Store Unavailable",
		Condition: func(ctx context.Context) bool {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return health(ctx) != nil
		},
		Level:     AlertLevelCritical,
		Component: "storage",
		Message:   "Download record store health check failed",
		Cooldown:  time.Minute,
	}
}

// DownloadBacklogRule 后台下载协程全部占满
func DownloadBacklogRule(active func() int, workers int) AlertRule {
	return AlertRule{
		ID:   "download_backlog",
		Name: "Download Backlog",
		Condition: func(context.Context) bool {
			return workers > 0 && active() >= workers
		},
		Level:     AlertLevelInfo,
		Component: "downloads",
		Message:   fmt.Sprintf("All %d download workers are busy", workers),
		Cooldown:  5 * time.Minute,
	}
}

// LogAlertReceiver 把告警写进日志，级别随告警级别变化
type LogAlertReceiver struct {
	log *zap.Logger
}

// NewLogAlertReceiver 创建日志告警接收器
func NewLogAlertReceiver(log *zap.Logger) *LogAlertReceiver {
	return &LogAlertReceiver{log: log}
}

// SendAlert 实现 AlertReceiver
func (r *LogAlertReceiver) SendAlert(alert *Alert) error {
	write := r.log.Info
	switch alert.Level {
	case AlertLevelCritical:
		write = r.log.Error
	case AlertLevelWarning:
		write = r.log.Warn
	}
	write("alert fired",
		zap.String("alert_id", alert.ID),
		zap.String("rule", alert.RuleID),
		zap.String("level", string(alert.Level)),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
		zap.String("component", alert.Component),
	)
	return nil
}
