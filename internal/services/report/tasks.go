package report

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/pkg/models"
)

// ParseTasks parses a tasks page in the given rendering style.
func ParseTasks(doc *goquery.Document, style vocab.TaskStyle) []*models.Task {
	if style == vocab.TaskStyleCurrent {
		return ParseCurrentTasks(doc)
	}
	return ParseLegacyTasks(doc)
}

type legacyRow int

const (
	rowHeader legacyRow = iota
	rowCommand
	rowStdout
	rowStderr
)

func classifyLegacyRow(tr *goquery.Selection) legacyRow {
	if class, _ := tr.Attr("class"); strings.TrimSpace(class) != "" {
		return rowHeader
	}
	if tr.Find("td.stdout").Length() > 0 {
		return rowStdout
	}
	if tr.Find("td.stderror").Length() > 0 {
		return rowStderr
	}
	return rowCommand
}

// ParseLegacyTasks parses the table rendering: each task is a block of
// rows starting at a header row (the only rows carrying a class), followed
// by a command row and optional stdout and stderr rows.
func ParseLegacyTasks(doc *goquery.Document) []*models.Task {
	var tasks []*models.Task
	var current *models.Task

	doc.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		kind := classifyLegacyRow(tr)
		if kind == rowHeader {
			current = &models.Task{Fields: make(map[string]string)}
			tasks = append(tasks, current)
			parseLegacyHeader(tr, current)
			return
		}
		if current == nil {
			return
		}
		switch kind {
		case rowCommand:
			parseLegacyCommand(tr, current)
		case rowStdout:
			current.Stdout = Preformatted(tr.Find("pre").First())
		case rowStderr:
			current.Stderr = Preformatted(tr.Find("pre").First())
		}
	})
	return tasks
}

// parseLegacyHeader reads "Key: value" lines, optionally parenthesised,
// from the header row's first cell. Only the first colon separates key from
// value.
func parseLegacyHeader(tr *goquery.Selection, task *models.Task) {
	for _, line := range strings.Split(Text(tr.Find("td").First()), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "(")
		line = strings.TrimSuffix(line, ")")
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		task.SetField(NormalizeKey(parts[0]), strings.TrimSpace(parts[1]))
	}
}

// parseLegacyCommand reads "Command: <executable> <arguments...>".
func parseLegacyCommand(tr *goquery.Selection, task *models.Task) {
	text := Text(tr.Find("td").First())
	if i := strings.Index(text, ":"); i >= 0 {
		text = text[i+1:]
	}
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return
	}
	task.Command = tokens[0]
	task.Arguments = ParseArguments(strings.Join(tokens[1:], " "))
}

// ParseCurrentTasks parses the article rendering, one article.task per task.
func ParseCurrentTasks(doc *goquery.Document) []*models.Task {
	var tasks []*models.Task
	doc.Find("article.task").Each(func(_ int, article *goquery.Selection) {
		task := &models.Task{Fields: make(map[string]string)}

		task.Stdout = Preformatted(article.Find(".panel-default pre").First())
		task.Stderr = Preformatted(article.Find(".panel-danger pre").First())
		task.Command = Text(article.Find("h3.panel-title.panel-title-simple").First())
		task.Arguments = ParseArguments(Preformatted(article.Find("div.panel-primary div.shell-output pre").First()))

		article.Find("div.row dl").Each(func(_ int, dl *goquery.Selection) {
			var key string
			dl.Children().Each(func(_ int, el *goquery.Selection) {
				switch goquery.NodeName(el) {
				case "dt":
					key = NormalizeKey(Text(el))
				case "dd":
					if key != "" {
						task.SetField(key, Text(el))
					}
				}
			})
		})

		// The heading reads "Task <uuid>".
		if heading := strings.Fields(Text(article.Find("div.task-heading h4").First())); len(heading) > 1 {
			task.SetField("task_uuid", heading[1])
		}
		tasks = append(tasks, task)
	})
	return tasks
}

// ParseArguments splits a rendered argument string of double-quoted
// arguments: one leading and one trailing quote are dropped and the rest is
// split on `" "`. Unquoted arguments containing spaces are not separated.
func ParseArguments(arguments string) []string {
	if arguments == "" {
		return []string{}
	}
	arguments = strings.TrimPrefix(arguments, `"`)
	arguments = strings.TrimSuffix(arguments, `"`)
	return strings.Split(arguments, `" "`)
}
