package server

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>My NFT Collection</title>
{{- if .View.IsMinting }}
<meta http-equiv="refresh" content="3">
{{- end }}
</head>
<body>
<div class="container">
  <div class="header-container">
    <p class="header gradient-text">My NFT Collection</p>
    <p class="sub-text">Each unique. Each beautiful. Discover your NFT today.</p>
    {{- if .View.Connected }}
    <p class="account">{{ .View.Account }}</p>
    {{- if .View.StatsLine }}
    <p class="minted">{{ .View.StatsLine }}</p>
    {{- end }}
    {{- if .FormsEnabled }}
    <form method="post" action="/mint">
      <button type="submit" class="cta-button connect-wallet-button"{{ if .View.IsMinting }} disabled{{ end }}>{{ .View.MintLabel }}</button>
    </form>
    {{- else }}
    <p class="signed-only">{{ if .View.IsMinting }}Minting ...{{ else }}Minting is available through the signed API.{{ end }}</p>
    {{- end }}
    {{- else if .FormsEnabled }}
    <form method="post" action="/connect">
      <button type="submit" class="cta-button connect-wallet-button">Connect to Wallet</button>
    </form>
    {{- end }}
    <a class="opensea-button" href="{{ .CollectionURL }}" target="_blank" rel="noreferrer">🌊 View Collection on OpenSea</a>
  </div>
  {{- if .Alerts }}
  <ul class="alerts">
    {{- range .Alerts }}
    <li class="alert alert-{{ .Level }}">{{ .Message }}{{ if .Link }} <a href="{{ .Link }}">{{ .Link }}</a>{{ end }}</li>
    {{- end }}
  </ul>
  {{- end }}
  <div class="footer-container">
    <a class="footer-text" href="{{ .TwitterURL }}" target="_blank" rel="noreferrer">built by @{{ .TwitterHandle }}</a>
  </div>
</div>
</body>
</html>
`
