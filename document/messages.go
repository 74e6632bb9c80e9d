package document

// AttachMessages attaches a new bundle holding msgs to line, replacing the
// bundle attached before. It returns the id of the new bundle.
func (d *Document) AttachMessages(line int, msgs []Message) (BundleID, bool) {
	if line < 0 || line >= d.lines.LineCount() {
		return BundleID{}, false
	}
	b := NewMessageBundle(msgs)
	d.lines.info(line).Messages = b
	return b.ID, true
}

// DetachMessages removes the bundle of line and returns its id.
func (d *Document) DetachMessages(line int) (BundleID, bool) {
	if line < 0 || line >= d.lines.LineCount() {
		return BundleID{}, false
	}
	info := d.lines.info(line)
	if info.Messages == nil {
		return BundleID{}, false
	}
	id := info.Messages.ID
	info.Messages = nil
	return id, true
}

// Bundle returns the bundle attached to line.
func (d *Document) Bundle(line int) (*MessageBundle, bool) {
	if line < 0 || line >= d.lines.LineCount() {
		return nil, false
	}
	b := d.lines.info(line).Messages
	return b, b != nil
}

// FindBundle returns the line a bundle is currently attached to.
func (d *Document) FindBundle(id BundleID) (int, bool) {
	for i, l := range d.lines.All() {
		if l.Info.Messages != nil && l.Info.Messages.ID == id {
			return i, true
		}
	}
	return 0, false
}
