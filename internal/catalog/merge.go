package catalog

// BuildView merges the static list with stored records.
//
// Static entries keep their declared order. A stored record with the same name
// overlays category, homepage, icon and description only when it has a value,
// and replaces the version fields wholesale once it carries a version. Stored
// records with no static counterpart follow, in store order. Neither input is
// modified.
func BuildView(static []StaticEntry, stored []ToolRecord) View {
	byName := make(map[string]int, len(stored))
	for i, rec := range stored {
		if _, dup := byName[rec.Name]; !dup {
			byName[rec.Name] = i
		}
	}
	consumed := make(map[string]bool, len(stored))
	emitted := make(map[string]bool, len(static)+len(stored))
	view := make(View, 0, len(static)+len(stored))

	for _, entry := range static {
		if emitted[entry.Name] {
			continue
		}
		emitted[entry.Name] = true
		idx, ok := byName[entry.Name]
		if !ok {
			view = append(view, fromStatic(entry))
			continue
		}
		consumed[entry.Name] = true
		view = append(view, overlay(entry, stored[idx]))
	}

	for _, rec := range stored {
		if consumed[rec.Name] || emitted[rec.Name] {
			continue
		}
		emitted[rec.Name] = true
		view = append(view, fromRecord(rec))
	}
	return view
}

func fromStatic(entry StaticEntry) ViewEntry {
	return ViewEntry{
		Name:                entry.Name,
		Category:            entry.Category,
		Description:         entry.Description,
		HomepageURL:         entry.HomepageURL,
		Icon:                entry.Icon,
		Version:             entry.Version,
		DownloadURL:         entry.DownloadURL,
		OriginalDownloadURL: entry.DownloadURL,
		VersionList:         deriveVersionList(nil, entry.Version, entry.DownloadURL),
	}
}

func overlay(entry StaticEntry, rec ToolRecord) ViewEntry {
	out := fromStatic(entry)
	out.Category = firstNonEmpty(rec.Category, entry.Category)
	out.HomepageURL = firstNonEmpty(rec.HomepageURL, entry.HomepageURL)
	out.Icon = firstNonEmpty(rec.Icon, entry.Icon)
	out.Description = firstNonEmpty(rec.Description, entry.Description)
	if rec.Version == "" {
		return out
	}
	out.Version = rec.Version
	out.DownloadURL = downloadURL(rec)
	out.OriginalDownloadURL = rec.OriginalDownloadURL
	out.VersionList = deriveVersionList(rec.VersionList, rec.Version, out.DownloadURL)
	return out
}

func fromRecord(rec ToolRecord) ViewEntry {
	download := downloadURL(rec)
	return ViewEntry{
		Name:                rec.Name,
		Category:            rec.Category,
		Description:         rec.Description,
		HomepageURL:         rec.HomepageURL,
		Icon:                rec.Icon,
		Version:             rec.Version,
		DownloadURL:         download,
		OriginalDownloadURL: rec.OriginalDownloadURL,
		VersionList:         deriveVersionList(rec.VersionList, rec.Version, download),
	}
}

// downloadURL prefers the accelerated link; rows written before acceleration
// existed only carry the original.
func downloadURL(rec ToolRecord) string {
	return firstNonEmpty(rec.AcceleratedDownloadURL, rec.OriginalDownloadURL)
}

// deriveVersionList gives every entry the same shape: an explicit list is used
// verbatim, a lone version/url pair becomes a one-element list.
func deriveVersionList(list []VersionEntry, version, url string) []VersionEntry {
	if len(list) > 0 {
		return append([]VersionEntry(nil), list...)
	}
	if version != "" && url != "" {
		return []VersionEntry{{Version: version, URL: url}}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
