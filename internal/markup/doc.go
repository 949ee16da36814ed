// Package markup parses XML and HTML into event streams and provides the
// XML template front end.
//
// ParseXML and ParseHTML turn input documents into event.Stream values.
// They are used for data that is spliced into templates, for the select
// command, and by the template front end itself.
//
// Frontend reads an XML template and emits compiler tokens. Directives
// are attributes or elements in the directive namespace:
//
//	<ul xmlns:py="https://weft.dev/ns/template">
//	  <li py:for="item in items" py:if="item.visible">${item.title}</li>
//	  <py:choose test="len(items)">
//	    <py:when test="0">empty</py:when>
//	  </py:choose>
//	</ul>
//
// The py prefix may also be left undeclared. XInclude elements
// (xi:include, xi:fallback) pull in other templates, and comments that
// begin with "!" are dropped from the output.
package markup
