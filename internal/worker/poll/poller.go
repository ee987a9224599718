// Package poll は生成ジョブの状態ポーリングを提供する。
// リソース種別ごとのティッカーループで一覧を再フェッチし、
// processing状態のアイテムがなくなった時点で自己停止する。
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keisuke/melodeck/internal/model"
)

// Refresher はティックごとのバックグラウンドフェッチ実行インターフェース。
// 返り値はフェッチ後の状態にprocessingアイテムが含まれるか。
type Refresher interface {
	RefreshBackground(ctx context.Context, kind model.ResourceKind) (bool, error)
}

// CompletionNotifier は全ジョブ完了時のワンショット通知インターフェース。
type CompletionNotifier interface {
	NotifyJobsCompleted(kind model.ResourceKind)
}

// TickRecorder はポーラーが記録するメトリクスのインターフェース。
type TickRecorder interface {
	RecordPollTick(kind string)
	SetActivePollers(count int)
}

// defaultInterval は間隔が未指定の種別に適用するポーリング間隔。
const defaultInterval = 5 * time.Second

// kindPoller は1種別分の稼働中ポーリングループ。
type kindPoller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller はリソース種別ごとのポーリングループのライフサイクルを管理する。
// 種別ごとの状態機械は Idle → Polling → Idle の2状態のみ。
// Startは冪等で、稼働中の種別に再度呼ぶと既存のループを置き換える
// （重複タイマーの蓄積を防ぐ）。
type Poller struct {
	refresher Refresher
	notifier  CompletionNotifier
	recorder  TickRecorder
	logger    *slog.Logger

	// limiter は全種別合計のティック実行レートの上限。
	// バックエンドへのバースト的な負荷を抑える。
	limiter *rate.Limiter

	mu      sync.Mutex
	running map[model.ResourceKind]*kindPoller
}

// NewPoller はPollerの新しいインスタンスを生成する。
// tickBudgetは全種別合計のティック/秒の上限。0以下の場合は無制限。
func NewPoller(
	refresher Refresher,
	notifier CompletionNotifier,
	recorder TickRecorder,
	logger *slog.Logger,
	tickBudget float64,
) *Poller {
	limit := rate.Inf
	burst := 1
	if tickBudget > 0 {
		limit = rate.Limit(tickBudget)
		burst = int(tickBudget)
		if burst < 1 {
			burst = 1
		}
	}
	return &Poller{
		refresher: refresher,
		notifier:  notifier,
		recorder:  recorder,
		logger:    logger,
		limiter:   rate.NewLimiter(limit, burst),
		running:   make(map[model.ResourceKind]*kindPoller),
	}
}

// Start は指定種別のポーリングループを開始する。
// 既に稼働中の場合は既存のループを停止してから新しいループを開始する
// （冪等: 呼び出し回数に関わらず稼働タイマーは種別ごとに常に1つ）。
// processingアイテムが0件の状態で開始しても正当で、最初のティックで
// 即座に自己停止する（呼び出し元に事前チェックは要求しない）。
// ctxのキャンセルでループは外部停止される。
func (p *Poller) Start(ctx context.Context, kind model.ResourceKind, interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}

	p.mu.Lock()

	if existing, ok := p.running[kind]; ok {
		existing.cancel()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	kp := &kindPoller{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.running[kind] = kp
	p.recorder.SetActivePollers(len(p.running))
	p.mu.Unlock()

	p.logger.Info("ポーリングを開始します",
		slog.String("kind", string(kind)),
		slog.Duration("interval", interval),
	)

	go p.runLoop(loopCtx, kind, interval, kp)
}

// Stop は指定種別のポーリングループを停止する。稼働していない場合はno-op。
// ビューの破棄時に必ず呼び出す（タイマーを所有者より長生きさせない）。
func (p *Poller) Stop(kind model.ResourceKind) {
	p.mu.Lock()
	kp, ok := p.running[kind]
	if ok {
		delete(p.running, kind)
		p.recorder.SetActivePollers(len(p.running))
	}
	p.mu.Unlock()

	if ok {
		kp.cancel()
		p.logger.Info("ポーリングを停止しました", slog.String("kind", string(kind)))
	}
}

// StopAll は全種別のポーリングループを停止する。ログアウトとシャットダウンで使用する。
func (p *Poller) StopAll() {
	p.mu.Lock()
	stopped := make([]*kindPoller, 0, len(p.running))
	for kind, kp := range p.running {
		stopped = append(stopped, kp)
		delete(p.running, kind)
	}
	p.recorder.SetActivePollers(0)
	p.mu.Unlock()

	for _, kp := range stopped {
		kp.cancel()
	}
}

// Active は指定種別のポーリングループが稼働中かを返す。
func (p *Poller) Active(kind model.ResourceKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[kind]
	return ok
}

// ActiveCount は稼働中のポーリングループ数を返す。
func (p *Poller) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// runLoop は1種別分のポーリングループ本体。
// ティックごとにバックグラウンドフェッチを実行し、
// フェッチ成功かつprocessing 0件で通知を発行して自己停止する。
// フェッチ失敗のティックは握りつぶして（ログのみ）次のティックへ続行する。
func (p *Poller) runLoop(ctx context.Context, kind model.ResourceKind, interval time.Duration, kp *kindPoller) {
	defer close(kp.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.selfStop(kind, kp)
			return
		case <-ticker.C:
			if err := p.limiter.Wait(ctx); err != nil {
				p.selfStop(kind, kp)
				return
			}

			p.recorder.RecordPollTick(string(kind))

			hasProcessing, err := p.refresher.RefreshBackground(ctx, kind)
			if err != nil {
				// 1ティックの失敗ではポーリングを止めない。
				// 継続/停止はフェッチ成功時のprocessing有無のみで決まる。
				p.logger.Warn("ポーリングティックのフェッチに失敗しました",
					slog.String("kind", string(kind)),
					slog.String("error", err.Error()),
				)
				continue
			}

			if hasProcessing {
				continue
			}

			// 全ジョブが終端状態に到達した: 通知は自己停止ごとに1回だけ発行する
			p.selfStop(kind, kp)
			p.notifier.NotifyJobsCompleted(kind)
			p.logger.Info("全ジョブが完了したためポーリングを終了します",
				slog.String("kind", string(kind)),
			)
			return
		}
	}
}

// selfStop はループ自身による停止処理。
// Startによる置き換えと競合した場合、runningにいるのが自分自身の
// 場合のみ登録を外す（新しいループを誤って消さない）。
func (p *Poller) selfStop(kind model.ResourceKind, kp *kindPoller) {
	p.mu.Lock()
	if current, ok := p.running[kind]; ok && current == kp {
		delete(p.running, kind)
		p.recorder.SetActivePollers(len(p.running))
	}
	p.mu.Unlock()
	kp.cancel()
}
