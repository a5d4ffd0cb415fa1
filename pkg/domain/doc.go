/*
Package domain contains the core models of a call flow.

It defines the persisted document of one lead, the flow graph it carries and
the addressable location token used to resume a position. This package is kept
pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - FlowDocument: the persisted unit for one lead (subject attributes + flow).
  - FlowGraph: the briefing context, the start node and the ordered node set.
  - Node / Branch: one scripted stage and its caller-response options.
  - Location: the "lead/<identity>[/<node>]" token used for deep links.
  - Event: a notification emitted by the engines for observers and renderers.
*/
package domain
