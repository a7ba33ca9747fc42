package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newModerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "moderate",
		Short: "Work through pending signups, recipes and delete requests",
		Long: `Open an interactive queue of everything waiting for a decision.

Keys:
  a       - approve the selected entry
  r       - reject the selected entry
  ctrl+r  - reload the queue
  /       - filter
  q       - quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := tea.NewProgram(newModerateModel(cmd.Context(), a.mod), tea.WithAltScreen())
			_, err := p.Run()
			return err
		},
	}
}

// queueKind is the kind of decision a queue entry waits for.
type queueKind int

const (
	kindSignup queueKind = iota
	kindRecipe
	kindDeletion
)

// queueItem is one entry of the moderation queue.
type queueItem struct {
	kind   queueKind
	id     uint
	label  string
	detail string
}

func (i queueItem) FilterValue() string { return i.label }
func (i queueItem) Title() string       { return formatKind(i.kind) + " " + i.label }
func (i queueItem) Description() string { return mutedStyle.Render(i.detail) }

// action is what an administrator decided for an entry.
type action string

const (
	actionApprove action = "approve"
	actionReject  action = "reject"
)

// apply performs the decision through the moderation service and returns a
// line for the activity log.
func (i queueItem) apply(ctx context.Context, mod moderator, act action) (string, error) {
	var (
		err  error
		done string
	)
	switch {
	case i.kind == kindSignup && act == actionApprove:
		_, err = mod.ApproveUser(ctx, i.id)
		done = "Approved signup"
	case i.kind == kindSignup:
		_, err = mod.RejectUser(ctx, i.id)
		done = "Rejected signup"
	case i.kind == kindRecipe && act == actionApprove:
		_, err = mod.ApproveRecipe(ctx, i.id)
		done = "Published recipe"
	case i.kind == kindRecipe:
		_, err = mod.RejectRecipe(ctx, i.id)
		done = "Rejected recipe"
	case act == actionApprove:
		_, err = mod.ApproveDelete(ctx, i.id)
		done = "Deleted recipe"
	default:
		_, err = mod.RejectDelete(ctx, i.id)
		done = "Kept recipe"
	}
	if err != nil {
		return "", err
	}
	return done + " " + i.label, nil
}

// confirmationMessage describes what confirming act on i will do.
func (i queueItem) confirmationMessage(act action) string {
	switch {
	case i.kind == kindSignup && act == actionApprove:
		return "Let " + i.label + " log in?"
	case i.kind == kindSignup:
		return "Remove the signup from " + i.label + "?"
	case i.kind == kindRecipe && act == actionApprove:
		return "Publish \"" + i.label + "\"?"
	case i.kind == kindRecipe:
		return "Reject and remove \"" + i.label + "\"?"
	case act == actionApprove:
		return "Delete \"" + i.label + "\" and its reviews?"
	default:
		return "Keep \"" + i.label + "\" and clear the delete request?"
	}
}

// confirmationDialog is a yes/no prompt. No is selected initially.
type confirmationDialog struct {
	title       string
	message     string
	yesSelected bool
}

// update handles a key and reports whether the dialog was answered.
func (d *confirmationDialog) update(msg tea.KeyMsg) (answered, yes bool) {
	switch msg.String() {
	case "left", "h":
		d.yesSelected = true
	case "right", "l":
		d.yesSelected = false
	case "y":
		return true, true
	case "n", "esc", "q":
		return true, false
	case "enter":
		return true, d.yesSelected
	}
	return false, false
}

func (d confirmationDialog) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(d.title))
	b.WriteString("\n\n")
	b.WriteString(d.message)
	b.WriteString("\n\n")

	yesButton := inactiveButtonStyle.Render("Yes")
	noButton := inactiveButtonStyle.Render("No")
	if d.yesSelected {
		yesButton = activeButtonStyle.Render("Yes")
	} else {
		noButton = activeButtonStyle.Render("No")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Left, yesButton, "  ", noButton))
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(formatKey("←/→", "choose") + " • " + formatKey("enter", "confirm") + " • " + formatKey("esc", "cancel")))

	return boxStyle.Render(b.String())
}

type moderateMode int

const (
	modeList moderateMode = iota
	modeConfirm
	modeBusy
)

const maxLogLines = 6

// moderateModel is the bubbletea model of the moderation queue.
type moderateModel struct {
	ctx     context.Context
	mod     moderator
	mode    moderateMode
	list    list.Model
	dialog  confirmationDialog
	target  queueItem
	act     action
	logs    []string
	loadErr error
	width   int
	height  int
}

func newModerateModel(ctx context.Context, mod moderator) moderateModel {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Moderation queue"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.SetStatusBarItemName("entry", "entries")
	l.Styles.Title = titleStyle
	l.DisableQuitKeybindings()

	return moderateModel{ctx: ctx, mod: mod, mode: modeList, list: l}
}

type queueLoadedMsg struct {
	items []list.Item
}

type queueErrorMsg struct {
	err error
}

type decisionMsg struct {
	line string
	err  error
}

// loadQueue fetches signups, then pending recipes, then delete requests.
func loadQueue(ctx context.Context, mod moderator) tea.Cmd {
	return func() tea.Msg {
		var items []list.Item

		users, err := mod.PendingUsers(ctx)
		if err != nil {
			return queueErrorMsg{err: fmt.Errorf("load signups: %w", err)}
		}
		for _, u := range users {
			items = append(items, queueItem{
				kind:   kindSignup,
				id:     u.ID,
				label:  u.Username,
				detail: fmt.Sprintf("%s • signed up %s", u.Email, u.CreatedAt.Format("2006-01-02")),
			})
		}

		recipes, err := mod.PendingRecipes(ctx)
		if err != nil {
			return queueErrorMsg{err: fmt.Errorf("load recipes: %w", err)}
		}
		for _, r := range recipes {
			items = append(items, queueItem{
				kind:   kindRecipe,
				id:     r.ID,
				label:  r.Title,
				detail: fmt.Sprintf("%s by %s", r.Category, r.CreatorUsername),
			})
		}

		deletions, err := mod.DeleteRequests(ctx)
		if err != nil {
			return queueErrorMsg{err: fmt.Errorf("load delete requests: %w", err)}
		}
		for _, r := range deletions {
			items = append(items, queueItem{
				kind:   kindDeletion,
				id:     r.ID,
				label:  r.Title,
				detail: fmt.Sprintf("requested by %s • %d reviews", r.CreatorUsername, r.TotalReviews),
			})
		}

		return queueLoadedMsg{items: items}
	}
}

func decide(ctx context.Context, mod moderator, item queueItem, act action) tea.Cmd {
	return func() tea.Msg {
		line, err := item.apply(ctx, mod, act)
		return decisionMsg{line: line, err: err}
	}
}

func (m moderateModel) Init() tea.Cmd {
	return loadQueue(m.ctx, m.mod)
}

func (m *moderateModel) log(line string) {
	m.logs = append(m.logs, line)
	if len(m.logs) > maxLogLines {
		m.logs = m.logs[1:]
	}
}

func (m moderateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-12)
		return m, nil

	case queueLoadedMsg:
		m.loadErr = nil
		return m, m.list.SetItems(msg.items)

	case queueErrorMsg:
		m.loadErr = msg.err
		return m, nil

	case decisionMsg:
		m.mode = modeList
		if msg.err != nil {
			m.log(dangerStyle.Render("✗ " + msg.err.Error()))
		} else {
			m.log(successStyle.Render("✓ " + msg.line))
		}
		return m, loadQueue(m.ctx, m.mod)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeList:
			if m.list.FilterState() == list.Filtering {
				break
			}
			switch msg.String() {
			case "q":
				return m, tea.Quit
			case "ctrl+r":
				return m, loadQueue(m.ctx, m.mod)
			case "a", "r":
				item, ok := m.list.SelectedItem().(queueItem)
				if !ok {
					return m, nil
				}
				m.target = item
				m.act = actionApprove
				if msg.String() == "r" {
					m.act = actionReject
				}
				m.dialog = confirmationDialog{
					title:   "Confirm " + string(m.act),
					message: item.confirmationMessage(m.act),
				}
				m.mode = modeConfirm
				return m, nil
			}

		case modeConfirm:
			answered, yes := m.dialog.update(msg)
			if !answered {
				return m, nil
			}
			if !yes {
				m.mode = modeList
				return m, nil
			}
			m.mode = modeBusy
			return m, decide(m.ctx, m.mod, m.target, m.act)

		case modeBusy:
			return m, nil
		}
	}

	if m.mode == modeList {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m moderateModel) View() string {
	switch m.mode {
	case modeConfirm:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.dialog.View())
	case modeBusy:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			boxStyle.Render(mutedStyle.Render(fmt.Sprintf("Applying %s to %s...", m.act, m.target.label))))
	}

	sections := []string{m.list.View()}
	if m.loadErr != nil {
		sections = append(sections, dangerStyle.Render(m.loadErr.Error()))
	}
	if len(m.logs) > 0 {
		sections = append(sections, boxStyle.Render(strings.Join(m.logs, "\n")))
	}
	sections = append(sections, helpStyle.Render(
		formatKey("a", "approve")+" • "+
			formatKey("r", "reject")+" • "+
			formatKey("ctrl+r", "reload")+" • "+
			formatKey("q", "quit"),
	))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
