package toxfilebot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/opd-ai/toxfilebot/file"
	"github.com/opd-ai/toxfilebot/limits"
)

// CommandKind identifies a console command.
type CommandKind uint8

const (
	// CommandUnknown is any line that is not a known command; it is ignored.
	CommandUnknown CommandKind = iota
	// CommandStatus sets the status message to the rest of the line.
	CommandStatus
	// CommandList prints every transfer in the queue.
	CommandList
	// CommandKill stops the bot.
	CommandKill
)

// Command is one parsed console line.
type Command struct {
	Kind CommandKind
	Args string
}

// ParseCommand parses a console line such as "status out for lunch".
func ParseCommand(line string) Command {
	line = strings.TrimRight(line, "\r\n")
	name, args, _ := strings.Cut(line, " ")

	switch name {
	case "status":
		return Command{Kind: CommandStatus, Args: args}
	case "list":
		return Command{Kind: CommandList}
	case "kill":
		return Command{Kind: CommandKill}
	default:
		return Command{Kind: CommandUnknown, Args: line}
	}
}

// readCommands scans r line by line and delivers parsed commands until r is
// exhausted or ctx is done. The returned channel is closed afterwards.
func readCommands(ctx context.Context, r io.Reader) <-chan Command {
	out := make(chan Command)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case out <- ParseCommand(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// renderTransfers writes the queue snapshot to w as a table.
func renderTransfers(w io.Writer, infos []file.TransferInfo, limit int) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Friend", "File", "Name", "State", "Received"})

	active := 0
	for _, info := range infos {
		if info.State.IsActive() {
			active++
		}
		tw.AppendRow(table.Row{
			info.FriendID,
			info.FileID,
			info.FileName,
			info.State,
			limits.FormatSize(info.Received),
		})
	}
	tw.AppendFooter(table.Row{"", "", "", "active", fmt.Sprintf("%d/%d", active, limit)})
	tw.Render()
}
