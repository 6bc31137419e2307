package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"

	"github.com/dmitrijs2005/radsync/internal/client/client"
	"github.com/dmitrijs2005/radsync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/radsync/internal/client/services"
	"github.com/dmitrijs2005/radsync/internal/common"
	"github.com/dmitrijs2005/radsync/internal/models"
)

func (a *App) pull(ctx context.Context, kindArgs []string) error {
	kinds := make([]models.EntityKind, 0, len(kindArgs))
	for _, s := range kindArgs {
		k, err := models.ParseEntityKind(s)
		if err != nil {
			return err
		}
		kinds = append(kinds, k)
	}

	res, err := a.delta.SyncAll(ctx, kinds)
	if err != nil {
		return a.explain(err)
	}
	fmt.Fprintf(a.out, "merged %d changes, %d deletions in %d round(s); cursor %s\n",
		res.Changes, res.Deleted, res.Rounds, res.NextSince)
	if res.HasMore {
		fmt.Fprintln(a.out, "server still has more deletions; run pull again")
	}
	return nil
}

func (a *App) flush(ctx context.Context) error {
	res, err := a.push.Flush(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "delivered %d operation(s) before failing; %d still queued\n", res.Sent, res.Remaining)
		return a.explain(err)
	}
	fmt.Fprintf(a.out, "delivered %d operation(s), %d newly applied\n", res.Sent, res.Applied)
	if res.Rejected > 0 {
		fmt.Fprintf(a.out, "server refused %d operation(s); they were dropped, see the log\n", res.Rejected)
	}
	return nil
}

type usageInput struct {
	TemplateID string
	Modality   string
	Action     string
	Sentences  []string
	Meta       []string
}

func (a *App) recordUsage(ctx context.Context, in usageInput) error {
	evt := models.UsageEvent{Action: in.Action, FrasesUsadas: in.Sentences}
	if in.TemplateID != "" {
		evt.TemplateID = &in.TemplateID
	}
	if in.Modality != "" {
		evt.Modality = &in.Modality
	}
	if len(in.Meta) > 0 {
		kv, err := ParseKeyValues(in.Meta)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(kv)
		if err != nil {
			return err
		}
		evt.Metadata = raw
	}

	id, err := a.push.RecordUsage(ctx, evt)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "queued usage event %s\n", id)
	return nil
}

func (a *App) list(ctx context.Context, kindArg, modality, search string) error {
	kind, err := models.ParseEntityKind(kindArg)
	if err != nil {
		return err
	}
	l, err := a.catalog.List(ctx, kind, modality, search)
	if err != nil {
		return a.explain(err)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, e := range l.Rows {
		fmt.Fprintf(tw, "%s\t%s\n", e.ID, label(e))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d row(s) from %s\n", len(l.Rows), l.Source)
	return nil
}

func (a *App) showTemplate(ctx context.Context, id string) error {
	row, src, err := a.catalog.Template(ctx, id)
	if err != nil {
		return a.explain(err)
	}
	p, err := models.DecodePayload(*row, nil)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n(from %s)\n", b, src)
	return nil
}

// operationLog prints the server's legacy operation feed after since.
func (a *App) operationLog(ctx context.Context, since string) error {
	res, err := a.catalog.OperationLog(ctx, since)
	if err != nil {
		return a.explain(err)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, e := range res.Changes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.UpdatedAt.Format(time.RFC3339), e.Entity, e.EntityID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d entr(ies); next since %s\n", len(res.Changes), res.NextSince)
	if res.HasMore {
		fmt.Fprintln(a.out, "more entries available; rerun with --since", res.NextSince)
	}
	return nil
}

func label(e models.Entity) string {
	p, err := models.DecodePayload(e, nil)
	if err != nil {
		return "(invalid payload)"
	}
	switch v := p.(type) {
	case models.TemplatePayload:
		return v.Title
	case models.SentencePayload:
		return v.Text
	case models.FindingPayload:
		return v.Description
	}
	return ""
}

func (a *App) status(ctx context.Context) error {
	st, err := services.ReadStatus(ctx, a.repos.Metadata, a.queue)
	if err != nil {
		return err
	}
	storage := "sqlite " + a.config.DBPath
	if !a.repos.Durable() {
		storage = "memory (local store unavailable)"
	}
	last := "never"
	if !st.LastOnline.IsZero() {
		last = st.LastOnline.Format("2006-01-02 15:04:05Z07:00")
	}
	authed := "no"
	if a.transport.Session().AccessToken() != "" {
		authed = "yes"
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "server\t%s\n", a.config.BaseURL)
	fmt.Fprintf(tw, "storage\t%s\n", storage)
	fmt.Fprintf(tw, "cursor\t%s\n", st.Cursor)
	for _, k := range models.AllKinds {
		fmt.Fprintf(tw, "  %s\t%s\n", k, st.Cursors[k])
	}
	fmt.Fprintf(tw, "pending ops\t%d\n", st.Pending)
	fmt.Fprintf(tw, "device\t%s\n", st.DeviceID)
	fmt.Fprintf(tw, "last online\t%s\n", last)
	fmt.Fprintf(tw, "token\t%s\n", authed)
	return tw.Flush()
}

func (a *App) setTokens(ctx context.Context) error {
	access, err := GetSecret(a.reader, "Access token", a.out)
	if err != nil {
		return err
	}
	refresh, err := GetSecret(a.reader, "Refresh token (empty to skip)", a.out)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if access == "" {
		return errors.New("access token is required")
	}
	a.transport.Session().Set(access, refresh)
	fmt.Fprintln(a.out, "token saved")
	return nil
}

func (a *App) clearTokens(ctx context.Context) error {
	a.transport.Session().Clear()
	fmt.Fprintln(a.out, "token cleared")
	return services.SaveTokens(ctx, a.repos.Metadata, "", "")
}

// reset forgets the sync cursors and validators so the next pull starts
// from the epoch. Cached rows and pending operations are kept.
func (a *App) reset(ctx context.Context) error {
	if err := metadata.ResetCursors(ctx, a.repos.Metadata); err != nil {
		return err
	}
	if err := a.repos.Metadata.Delete(ctx, common.ValidatorMetadataKey); err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", common.ValidatorMetadataKey, err)
	}
	for url := range a.transport.Tracker().Snapshot() {
		a.transport.Tracker().Forget(url)
	}
	fmt.Fprintln(a.out, "sync cursor reset")
	return nil
}

func (a *App) showPrefs(ctx context.Context) error {
	p, src, err := a.catalog.Prefs(ctx)
	if err != nil {
		return a.explain(err)
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s\n(from %s)\n", b, src)
	return nil
}

type prefsInput struct {
	DarkMode     *bool
	VoiceName    *string
	VoiceRate    *float64
	AddTemplate  []string
	AddSentences []string
	Now          bool
}

func (a *App) updatePrefs(ctx context.Context, in prefsInput) error {
	p, _, err := a.catalog.Prefs(ctx)
	if err != nil {
		return a.explain(err)
	}
	if in.DarkMode != nil {
		p.DarkMode = *in.DarkMode
	}
	if in.VoiceName != nil {
		p.VoiceName = in.VoiceName
	}
	if in.VoiceRate != nil {
		p.VoiceRate = *in.VoiceRate
	}
	p.FavoriteTemplates = mergeIDs(p.FavoriteTemplates, in.AddTemplate)
	p.FavoriteSentences = mergeIDs(p.FavoriteSentences, in.AddSentences)

	if !in.Now {
		if _, err := a.catalog.SavePrefs(ctx, *p); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "preferences saved; they will be pushed on the next flush")
		return nil
	}

	_, src, err := a.catalog.PutPrefs(ctx, *p)
	if err != nil {
		return a.explain(err)
	}
	if src == services.SourceLocal {
		fmt.Fprintln(a.out, "server unavailable; preferences saved and queued")
		return nil
	}
	fmt.Fprintln(a.out, "preferences saved on the server")
	return nil
}

func mergeIDs(cur, add []string) []string {
	set := make(map[string]struct{}, len(cur)+len(add))
	for _, id := range append(append([]string(nil), cur...), add...) {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// explain adds a hint for the errors a user can act on.
func (a *App) explain(err error) error {
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("%w: run `radsync token set` to re-authenticate", err)
	case services.IsOffline(err):
		return fmt.Errorf("%w: server %s is not reachable", err, a.config.BaseURL)
	}
	return err
}
