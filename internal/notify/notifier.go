package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yourusername/eco-portal/internal/ledger"
	"github.com/yourusername/eco-portal/internal/metrics"
)

// Recorder は通知結果を台帳に書き込みます。
type Recorder interface {
	RecordNotification(ctx context.Context, id uint, sent bool, emailError string) error
}

// Notifier は完了した申請の申請者へダウンロードリンクを送ります。
type Notifier struct {
	mailer   Mailer
	recorder Recorder
	baseURL  string
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewNotifier は Notifier を作成します。mailer が nil の場合、送信は常に失敗として記録されます。
func NewNotifier(mailer Mailer, recorder Recorder, baseURL string, logger *slog.Logger, m *metrics.Metrics) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		mailer:   mailer,
		recorder: recorder,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger.With("component", "notify"),
		metrics:  m,
	}
}

// DownloadURL は申請 id の取得リンクを返します。
func DownloadURL(baseURL string, id uint) string {
	return fmt.Sprintf("%s/api/downloads/%d/file", strings.TrimRight(baseURL, "/"), id)
}

// NotifyCompleted は完了メールを送り、結果を台帳に記録します。
// 送信失敗は記録するだけで呼び出し元には返しません。戻り値は送信できたかどうかです。
func (n *Notifier) NotifyCompleted(ctx context.Context, req *ledger.DownloadRequest) bool {
	err := n.send(ctx, req)
	sent := err == nil
	emailError := ""
	if err != nil {
		emailError = err.Error()
		n.logger.Warn("completion email failed", "request_id", req.ID, "error", err)
	} else {
		n.logger.Info("completion email sent", "request_id", req.ID)
	}
	n.metrics.Notification(sent)

	if recErr := n.recorder.RecordNotification(ctx, req.ID, sent, emailError); recErr != nil {
		n.logger.Error("failed to record notification outcome", "request_id", req.ID, "error", recErr)
	}
	return sent
}

func (n *Notifier) send(ctx context.Context, req *ledger.DownloadRequest) error {
	if n.mailer == nil {
		return ErrMailerNotConfigured
	}
	subject, body := completionMessage(req, DownloadURL(n.baseURL, req.ID))
	return n.mailer.Send(ctx, req.Email, subject, body)
}

func completionMessage(req *ledger.DownloadRequest, link string) (string, string) {
	name := req.FirstName
	if name == "" {
		name = req.Email
	}
	location := req.LocationID
	if req.LocationName != "" {
		location = fmt.Sprintf("%s（%s）", req.LocationName, req.LocationID)
	}

	subject := fmt.Sprintf("資料下載已完成：%s %d 年", location, req.Year)

	var b strings.Builder
	fmt.Fprintf(&b, "%s 您好：\n\n", name)
	fmt.Fprintf(&b, "您申請的 %s %d 年觀測資料已整理完成，請由下列連結下載：\n\n", location, req.Year)
	fmt.Fprintf(&b, "%s\n\n", link)
	fmt.Fprintf(&b, "申請編號：%d\n", req.ID)
	fmt.Fprintf(&b, "觀測項目：%s\n\n", strings.Join(req.Items, "、"))
	b.WriteString("檔案將於數日後自動刪除，請儘早下載。\n")
	return subject, b.String()
}
