// Package shaderlive is a live WGSL preview engine built on gogpu/wgpu.
//
// # Overview
//
// An author edits shader source; shaderlive keeps rendering the most recent
// shader that compiled, without restarting anything. Updates flow through
// a short chain of components:
//
//	text source -> coalesce.Coalescer -> shader.Compiler -> pipeline.Manager -> render.Renderer
//
// Bursts of edits collapse into one compilation against the newest text.
// A failed compile never replaces the active pipeline; it produces a
// [Diagnostic] for display instead. The render loop draws a full-screen quad
// every display refresh and feeds the shader a 48-byte uniform record
// ([UniformFrame]) holding time, resolution and pointer state.
//
// # Packages
//
//   - gpu: device context, buffer factory and the gogpu/wgpu backend
//   - shader: WGSL front-end analysis and shader module creation
//   - uniform: the per-frame uniform buffer and pointer state
//   - pipeline: render pipeline construction with an atomic active slot
//   - render: frame submission and the display-refresh loop
//   - coalesce: quiescence-window debouncing of shader updates
//   - preview: the Session tying all of the above together
//   - transport: websocket and file-watch sources of shader text
//
// # Uniform layout
//
// Shaders read the uniform record at @group(3) @binding(0):
//
//	struct Globals {
//	    time: f32,
//	    time_delta: f32,
//	    frame: u32,
//	    resolution: vec2<f32>,   // offset 16
//	    mouse: vec2<f32>,
//	    mouse_click: vec2<f32>,
//	    mouse_buttons: u32,
//	}
//
// # Logging
//
// shaderlive is silent by default. Use [SetLogger] to route structured
// logs to any [log/slog] handler.
package shaderlive
