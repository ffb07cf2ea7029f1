// Package dom binds a live channel to a parsed HTML document without a
// browser.
//
// A Binder keeps an id → element map of every element carrying a
// data-component-id attribute, turns click, submit, input and change events
// on elements with a data-action descriptor into action messages for the
// nearest enclosing component, and applies update messages by morphing the
// component's subtree in place.
//
//	doc, _ := dom.Parse(page)
//	b := dom.NewBinder(doc, manager)
//	cfg.OnUpdate = func(u protocol.Update) { _ = b.Apply(u) }
package dom
