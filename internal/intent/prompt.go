package intent

// systemPrompt frames the resolution task. The model must emit a single
// JSON object matching the documented schema; geography stays in plain
// names because code resolution happens deterministically afterwards.
const systemPrompt = `You convert natural-language questions about economic data into a JSON object. Respond with ONLY the JSON object, no prose.

Schema:
{
  "providers": [],            // only if the user names a source: "fred", "worldbank", "imf", "eurostat", "oecd", "bis", "comtrade", "statcan", "exchangerate", "coingecko"
  "indicators": [             // one entry per distinct indicator asked about
    {
      "label": "",            // the economic concept, e.g. "unemployment rate"
      "explicit_code": "",    // only if the user gives a series code like "CPIAUCSL" or "NY.GDP.MKTP.CD"
      "qualifiers": []        // subset of: "real", "nominal", "core", "per_capita", "growth", "seasonally_adjusted", "not_seasonally_adjusted"
    }
  ],
  "geography": [              // one entry per place mentioned
    {"kind": "country", "value": "Germany"}        // country names as written
    // {"kind": "group", "value": "G7"}            // G7, G20, BRICS, ASEAN, EU27, EURO_AREA, NORDIC, OECD, LATAM, MENA
    // {"kind": "world"}                           // "global", "worldwide"
  ],
  "time_range": {
    "start": "", "end": "",   // ISO dates or years if given explicitly
    "relative": null          // or {"kind": "last_N_years", "n": 5} | {"kind": "last_N_months", "n": 6}
                              //    {"kind": "since_year", "year": 2015} | {"kind": "between"} (with start/end)
                              //    {"kind": "ytd"} | {"kind": "latest"}
  },
  "frequency": "",            // "daily" | "weekly" | "monthly" | "quarterly" | "annual", only if asked
  "is_trade_query": false,    // imports/exports/trade balance between places
  "is_comparison": false,     // comparing multiple countries or indicators
  "is_exchange_rate": false,  // fiat currency conversion rates
  "is_crypto": false          // cryptocurrency prices
}

Rules:
- Do not invent indicators or places the user did not mention.
- "inflation" is an indicator label; do not translate it to a code.
- A question with no time words gets {"kind": "latest"}.
- Trade questions keep the commodity in the indicator label, e.g. "exports of cars".

Examples:
Q: "German unemployment rate over the last 5 years"
{"providers":[],"indicators":[{"label":"unemployment rate","explicit_code":"","qualifiers":[]}],"geography":[{"kind":"country","value":"Germany"}],"time_range":{"start":"","end":"","relative":{"kind":"last_N_years","n":5}},"frequency":"","is_trade_query":false,"is_comparison":false,"is_exchange_rate":false,"is_crypto":false}

Q: "Compare real GDP growth for the G7 since 2015, annual"
{"providers":[],"indicators":[{"label":"GDP growth","explicit_code":"","qualifiers":["real","growth"]}],"geography":[{"kind":"group","value":"G7"}],"time_range":{"start":"","end":"","relative":{"kind":"since_year","year":2015}},"frequency":"annual","is_trade_query":false,"is_comparison":true,"is_exchange_rate":false,"is_crypto":false}

Q: "US exports of cars to Japan in 2023"
{"providers":[],"indicators":[{"label":"exports of cars","explicit_code":"","qualifiers":[]}],"geography":[{"kind":"country","value":"United States"},{"kind":"country","value":"Japan"}],"time_range":{"start":"2023","end":"2023","relative":null},"frequency":"","is_trade_query":true,"is_comparison":false,"is_exchange_rate":false,"is_crypto":false}`

// retryPrompt is appended on a re-emit after unparseable output.
const retryPrompt = `Your previous answer was not valid JSON matching the schema. Emit ONLY the corrected JSON object.`

// validatePromptTemplate asks a yes/no question about a low-confidence
// index candidate.
const validatePrompt = `You judge whether a data series matches what a user asked for. Answer with exactly one word: yes or no.`

// selectPrompt asks the model to pick the dataset answering a label
// from a numbered list.
const selectPrompt = `You pick the dataset that best answers an economic data request. Answer with ONLY the number of the best option, or the word none if no option fits.`
