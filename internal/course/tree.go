package course

// ApplySelections annotates freshly composed, unselected
// course skeletons with the persisted selection paths.
//
// A course whose own path is present is selected in full.
// Otherwise each tab and file is selected when its own path
// is present, and a files tab that was not selected itself
// follows its files. Courses that end up with nothing selected
// are dropped. The empty path never matches anything.
func ApplySelections(skeletons []Entry, paths []string) []Entry {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}

	var out []Entry
	for _, skel := range skeletons {
		e := skel.Clone()
		if _, ok := set[e.ID]; ok {
			e.SelectCourse(Selected)
			out = append(out, e)
			continue
		}

		e.SelectCourse(Deselected)
		for i := range e.Tabs {
			if _, ok := set[e.Tabs[i].ID]; ok {
				e.Tabs[i].SelectionState = Selected
			}
		}
		for i := range e.Files {
			if _, ok := set[e.Files[i].ID]; ok {
				e.Files[i].SelectionState = Selected
			}
		}
		e.reconcileFilesTab()
		e.syncAdditionalContent()
		if e.SelectionState() == Deselected {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (e *Entry) reconcileFilesTab() {
	ft := e.tabIndexByType(TabFiles)
	if ft < 0 || len(e.Files) == 0 || e.Tabs[ft].SelectionState == Selected {
		return
	}
	switch n := len(e.SelectedFiles()); {
	case n == len(e.Files):
		e.Tabs[ft].SelectionState = Selected
	case n > 0:
		e.Tabs[ft].SelectionState = PartiallySelected
	}
}

// EncodeSelections turns a selection tree back into the
// paths ApplySelections understands. A fully selected course
// collapses to its own path.
func EncodeSelections(entries []Entry) []string {
	var paths []string
	for _, e := range entries {
		switch e.SelectionState() {
		case Selected:
			paths = append(paths, e.ID)
			continue
		case Deselected:
			continue
		}
		for _, t := range e.Tabs {
			if t.Type != TabAdditionalContent && t.SelectionState == Selected {
				paths = append(paths, t.ID)
			}
		}
		for _, f := range e.Files {
			if f.SelectionState == Selected {
				paths = append(paths, f.ID)
			}
		}
	}
	return paths
}
