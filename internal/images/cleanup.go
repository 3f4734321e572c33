package images

import "context"

// Cleanup removes every original of every field, calling remove hooks, and then
// the record directory together with any cached variants left in it.
func (a *Attachment) Cleanup(ctx context.Context) error {
	mu := a.b.dirLock(a.dir)
	mu.Lock()
	defer mu.Unlock()

	for _, name := range a.b.order {
		if err := a.removeFiles(ctx, name, true); err != nil {
			return err
		}
	}

	ok, err := a.b.store.Exists(a.dir)
	if err != nil || !ok {
		return err
	}
	if err := a.b.store.RemoveAll(a.dir); err != nil {
		return err
	}
	a.b.logger.Info("record images removed", "record", a.rec.PrimaryKey(), "dir", a.dir)
	return nil
}
