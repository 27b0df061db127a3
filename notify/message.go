// Package notify composes and delivers change-notification mail. The diff
// engine hands it a finished decision; nothing here influences whether a
// notification fires.
package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/tmaeda/urwatch/models"
)

// Message is one composed notification, ready for delivery.
type Message struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// Compose renders a decision plus the run's results into a mail message.
func Compose(decision models.Decision, snap *models.RunSnapshot) Message {
	date := snap.Timestamp.Format("2006-01-02 15:04")

	subject := fmt.Sprintf("【UR空室】%s", date)
	if decision.IsFirstRun {
		subject += " 初回チェック結果"
	} else if n := len(decision.NewlyVacant); n > 0 {
		subject += fmt.Sprintf(" 新着 %d件", n)
	}

	return Message{
		Subject:  subject,
		TextBody: composeText(decision, snap, date),
		HTMLBody: composeHTML(decision, snap, date),
	}
}

func composeText(decision models.Decision, snap *models.RunSnapshot, date string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "UR賃貸 空室チェック結果 (%s)\n", date)
	fmt.Fprintf(&b, "判定: %s\n\n", decision.Reason)

	if len(decision.NewlyVacant) > 0 {
		b.WriteString("■ 新着空室\n")
		for _, nv := range decision.NewlyVacant {
			label := "新規"
			if nv.ChangeType == models.ChangeTypeIncreased {
				label = "空室増加"
			}
			fmt.Fprintf(&b, "【%s】%s (%d件)\n", label, nv.Result.Name, nv.Result.UnitCount)
			fmt.Fprintf(&b, "  URL: %s\n", nv.URL)
			for _, u := range nv.Result.Units {
				fmt.Fprintf(&b, "  - %s / %s / %s / %s\n", u.Layout, u.Rent, u.FloorArea, u.Floor)
			}
			if nv.Result.Phone != models.Unknown {
				fmt.Fprintf(&b, "  電話: %s\n", nv.Result.Phone)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("■ チェックサマリー\n")
	fmt.Fprintf(&b, "  総チェック数: %d\n", snap.TotalChecked)
	fmt.Fprintf(&b, "  総空室数: %d\n", snap.TotalVacantUnits)

	var withUnits, without, failed []string
	for i := range snap.Results {
		r := &snap.Results[i]
		switch {
		case r.Status != models.StatusSuccess:
			failed = append(failed, fmt.Sprintf("  %s: %s", r.URL, r.Error))
		case r.UnitCount > 0:
			withUnits = append(withUnits, fmt.Sprintf("  %s: %d件", r.Name, r.UnitCount))
		default:
			without = append(without, fmt.Sprintf("  %s: ご紹介出来るお部屋はございません。", r.Name))
		}
	}
	if len(withUnits) > 0 {
		b.WriteString("\n空室あり:\n" + strings.Join(withUnits, "\n") + "\n")
	}
	if len(without) > 0 {
		b.WriteString("\n空室なし:\n" + strings.Join(without, "\n") + "\n")
	}
	if len(failed) > 0 {
		b.WriteString("\nチェック失敗:\n" + strings.Join(failed, "\n") + "\n")
	}

	return b.String()
}

func composeHTML(decision models.Decision, snap *models.RunSnapshot, date string) string {
	esc := html.EscapeString

	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<h2>UR賃貸 空室チェック結果 (%s)</h2>", esc(date))
	fmt.Fprintf(&b, "<p>判定: %s</p>", esc(decision.Reason))

	if len(decision.NewlyVacant) > 0 {
		b.WriteString("<h3>新着空室</h3>")
		for _, nv := range decision.NewlyVacant {
			label := "新規"
			if nv.ChangeType == models.ChangeTypeIncreased {
				label = "空室増加"
			}
			fmt.Fprintf(&b, `<p><strong>【%s】<a href="%s">%s</a></strong> (%d件)</p>`,
				label, esc(nv.URL), esc(nv.Result.Name), nv.Result.UnitCount)
			b.WriteString("<ul>")
			for _, u := range nv.Result.Units {
				fmt.Fprintf(&b, "<li>%s / %s / %s / %s</li>",
					esc(u.Layout), esc(u.Rent), esc(u.FloorArea), esc(u.Floor))
			}
			b.WriteString("</ul>")
		}
	}

	b.WriteString("<h3>チェックサマリー</h3>")
	fmt.Fprintf(&b, "<p>総チェック数: %d / 総空室数: %d</p>", snap.TotalChecked, snap.TotalVacantUnits)
	b.WriteString("<table border=\"1\" cellpadding=\"4\"><tr><th>物件名</th><th>空室数</th><th>状態</th></tr>")
	for i := range snap.Results {
		r := &snap.Results[i]
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td><td>%s</td></tr>",
			esc(r.Name), r.UnitCount, esc(r.Status))
	}
	b.WriteString("</table>")
	fmt.Fprintf(&b, "<p><small>生成時刻: %s</small></p>", esc(time.Now().Format(time.RFC3339)))
	b.WriteString("</body></html>")

	return b.String()
}
