package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/widget"

	"github.com/skhoury/notereader/internal/keychain"
	"github.com/skhoury/notereader/notebook"
)

// makePrimary makes a button follow the app accent.
func makePrimary(btn *widget.Button) *widget.Button {
	btn.Importance = widget.HighImportance
	return btn
}

// noteRow is one entry in the sidebar list.
type noteRow struct {
	id    string
	title string
}

func main() {
	a := app.New()
	w := a.NewWindow("Notebook Reader")
	w.Resize(fyne.NewSize(900, 600))

	root := container.NewMax()
	w.SetContent(root)

	var showOpen func()
	var showNotebook func(nb *notebook.Notebook, dir string)

	showOpen = func() {
		dirEntry := widget.NewEntry()
		dirEntry.SetPlaceHolder("Notebook directory")
		if wd, err := os.Getwd(); err == nil {
			dirEntry.SetText(wd)
		}

		passEntry := widget.NewPasswordEntry()
		passEntry.SetPlaceHolder("fragment,password;fragment,password")

		// Prefill from the keychain when a configuration is stored for the
		// directory. Best effort; unsupported platforms just skip it.
		fillFromKeychain := func() {
			if stored, err := keychain.Load(strings.TrimSpace(dirEntry.Text)); err == nil {
				passEntry.SetText(stored)
			}
		}
		dirEntry.OnSubmitted = func(string) { fillFromKeychain() }
		fillFromKeychain()

		btnOpen := makePrimary(widget.NewButton("Open Notebook", func() {
			dir := strings.TrimSpace(dirEntry.Text)
			if dir == "" {
				dialog.ShowInformation("Open Notebook", "Provide the notebook directory.", w)
				return
			}

			nb, err := notebook.Open(dir, passEntry.Text)
			if err != nil {
				dialog.ShowError(fmt.Errorf("open notebook: %w", err), w)
				return
			}
			passEntry.SetText("")
			showNotebook(nb, dir)
		}))

		form := widget.NewForm(
			widget.NewFormItem("Directory", dirEntry),
			widget.NewFormItem("Passwords", passEntry),
		)
		openCard := widget.NewCard(
			"Open Notebook",
			"Encrypted notes need their master key passwords.",
			container.NewVBox(
				form,
				container.NewHBox(layout.NewSpacer(), btnOpen),
			),
		)

		root.Objects = []fyne.CanvasObject{
			container.NewCenter(container.NewMax(container.NewPadded(openCard))),
		}
		root.Refresh()
	}

	showNotebook = func(nb *notebook.Notebook, dir string) {
		rows := make([]noteRow, 0)
		for _, id := range nb.NoteIDs() {
			title := "(locked)"
			if note, err := nb.ReadNote(id); err == nil {
				title = note.Title
			}
			rows = append(rows, noteRow{id: id, title: title})
		}

		body := widget.NewLabel("Select a note.")
		body.Wrapping = fyne.TextWrapWord
		titleLabel := widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

		list := widget.NewList(
			func() int { return len(rows) },
			func() fyne.CanvasObject { return widget.NewLabel("") },
			func(i widget.ListItemID, o fyne.CanvasObject) {
				o.(*widget.Label).SetText(rows[i].title)
			},
		)
		list.OnSelected = func(i widget.ListItemID) {
			note, err := nb.ReadNote(rows[i].id)
			if err != nil {
				titleLabel.SetText(rows[i].id)
				switch {
				case errors.Is(err, notebook.ErrNoKeyAvailable), errors.Is(err, notebook.ErrKeyNotUnlocked):
					body.SetText("This note is encrypted and its master key is not unlocked.")
				default:
					body.SetText(fmt.Sprintf("Could not read note: %v", err))
				}
				return
			}
			titleLabel.SetText(note.Title)
			body.SetText(note.Body)
		}

		btnClose := widget.NewButton("Close Notebook", func() {
			showOpen()
		})

		header := container.NewBorder(nil, nil, nil, btnClose,
			widget.NewLabel(dir),
		)
		reader := container.NewBorder(titleLabel, nil, nil, nil,
			container.NewVScroll(body),
		)
		split := container.NewHSplit(list, container.NewPadded(reader))
		split.SetOffset(0.3)

		root.Objects = []fyne.CanvasObject{
			container.NewBorder(header, nil, nil, nil, split),
		}
		root.Refresh()
	}

	showOpen()
	w.ShowAndRun()
}
