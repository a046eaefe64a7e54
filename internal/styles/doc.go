// Package styles turns one stylesheet entry into minified CSS plus a source
// map: import-glob expansion, Sass compilation, media query packing, then
// vendor prefixing and minification.
//
// Compilation sits behind the Compiler interface; DartSass drives a Dart
// Sass process over the embedded protocol.
package styles
