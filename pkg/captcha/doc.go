// Package captcha gates protected flows behind one of several captcha
// providers. Whether a feature needs a captcha is decided by the remote
// configuration; when it does not, the gate does nothing at all.
//
// Providers never touch a page directly. They drive a Host, which is the
// bridge to whatever renders scripts and widgets (a browser shell, a webview,
// or a fake in tests).
package captcha
