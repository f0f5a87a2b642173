// Package render turns a template and its selected DNA modules into files on
// disk. Files ending in .tmpl are executed with text/template and the sprig
// function set; all other files are copied verbatim.
package render
